package model

import (
	"github.com/bits-and-blooms/bitset"
)

// NodeSet is a set of NodeIDs backed by a dense bitset, so its size grows
// with the largest member. Members must not exceed MaxNodeID.
// The zero value is an empty set ready to use.
type NodeSet struct {
	bits bitset.BitSet
}

// NewNodeSet returns a set containing ids.
func NewNodeSet(ids ...NodeID) NodeSet {
	var s NodeSet
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id into the set.
func (s *NodeSet) Add(id NodeID) {
	s.bits.Set(uint(id))
}

// Remove deletes id from the set.
func (s *NodeSet) Remove(id NodeID) {
	s.bits.Clear(uint(id))
}

// Contains reports whether id is a member.
func (s NodeSet) Contains(id NodeID) bool {
	return s.bits.Test(uint(id))
}

// Len returns the number of members.
func (s NodeSet) Len() int {
	return int(s.bits.Count())
}

// Members returns the members in ascending order.
func (s NodeSet) Members() []NodeID {
	out := make([]NodeID, 0, s.bits.Count())
	for i, ok := s.bits.NextSet(0); ok; i, ok = s.bits.NextSet(i + 1) {
		out = append(out, NodeID(i))
	}
	return out
}

// Clone returns an independent copy.
// Mutating the clone never affects s.
func (s NodeSet) Clone() NodeSet {
	var c NodeSet
	s.bits.CopyFull(&c.bits)
	return c
}

// IntersectionLen returns |s ∩ other|.
func (s NodeSet) IntersectionLen(other NodeSet) int {
	return int(s.bits.IntersectionCardinality(&other.bits))
}

// Union adds every member of other to s.
func (s *NodeSet) Union(other NodeSet) {
	s.bits.InPlaceUnion(&other.bits)
}
