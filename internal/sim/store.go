package sim

import (
	"slices"
	"strings"
	"sync"

	"github.com/signalsfoundry/socleer/model"
)

// Store holds the message copies buffered at every node.
type Store struct {
	mu      sync.RWMutex
	buffers map[model.NodeID]map[string]model.Message
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{buffers: make(map[model.NodeID]map[string]model.Message)}
}

// Put buffers m at node. It reports false if node already held a copy.
func (s *Store) Put(node model.NodeID, m model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.buffers[node]
	if buf == nil {
		buf = make(map[string]model.Message)
		s.buffers[node] = buf
	}
	if _, ok := buf[m.ID]; ok {
		return false
	}
	buf[m.ID] = m
	return true
}

// Remove drops node's copy of the message. It reports whether a copy existed.
func (s *Store) Remove(node model.NodeID, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.buffers[node]
	if _, ok := buf[id]; !ok {
		return false
	}
	delete(buf, id)
	if len(buf) == 0 {
		delete(s.buffers, node)
	}
	return true
}

// Has reports whether node buffers the message.
func (s *Store) Has(node model.NodeID, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.buffers[node][id]
	return ok
}

// Messages returns node's buffer ordered by message ID.
func (s *Store) Messages(node model.NodeID) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := s.buffers[node]
	out := make([]model.Message, 0, len(buf))
	for _, m := range buf {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b model.Message) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Len returns the number of copies buffered at node.
func (s *Store) Len(node model.NodeID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buffers[node])
}

// Total returns the number of copies buffered across all nodes.
func (s *Store) Total() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, buf := range s.buffers {
		n += len(buf)
	}
	return n
}
