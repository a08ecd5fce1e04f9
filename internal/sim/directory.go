// Package sim is a small discrete-event host runtime for decision engines.
//
// It installs one engine per node, replays a contact trace against them,
// and moves messages between node buffers as the engines decide.
package sim

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/signalsfoundry/socleer/model"
	"github.com/signalsfoundry/socleer/routing"
)

var (
	// ErrNodeExists indicates an engine is already installed for a node.
	ErrNodeExists = errors.New("node already exists")
	// ErrNodeNotFound indicates a requested node was not found.
	ErrNodeNotFound = errors.New("node not found")
)

// Directory maps each node to its installed decision engine.
// It implements routing.Directory and is safe for concurrent use.
type Directory struct {
	mu      sync.RWMutex
	engines map[model.NodeID]routing.DecisionEngine
}

var _ routing.Directory = (*Directory)(nil)

// NewDirectory constructs an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		engines: make(map[model.NodeID]routing.DecisionEngine),
	}
}

// Install adds e for id. It returns ErrNodeExists if id already has an
// engine and model.ErrNodeIDRange if id exceeds model.MaxNodeID.
func (d *Directory) Install(id model.NodeID, e routing.DecisionEngine) error {
	if e == nil {
		return fmt.Errorf("install %s: nil engine", id)
	}
	if _, err := model.CheckNodeID(uint64(id)); err != nil {
		return fmt.Errorf("install: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.engines[id]; exists {
		return fmt.Errorf("%w: %s", ErrNodeExists, id)
	}
	d.engines[id] = e
	return nil
}

// Populate installs one replica of proto for every id.
func (d *Directory) Populate(proto routing.DecisionEngine, ids ...model.NodeID) error {
	for _, id := range ids {
		if err := d.Install(id, proto.Replicate()); err != nil {
			return err
		}
	}
	return nil
}

// Engine returns the engine installed for id.
func (d *Directory) Engine(id model.NodeID) (routing.DecisionEngine, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.engines[id]
	return e, ok
}

// Lookup is Engine with an ErrNodeNotFound error.
func (d *Directory) Lookup(id model.NodeID) (routing.DecisionEngine, error) {
	e, ok := d.Engine(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return e, nil
}

// Nodes returns every installed node in ascending order.
func (d *Directory) Nodes() []model.NodeID {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]model.NodeID, 0, len(d.engines))
	for id := range d.engines {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of installed engines.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.engines)
}
