package pool

import (
	"fmt"

	"github.com/signalsfoundry/socleer/model"
)

// Kind tells which centrality a sample was read from.
type Kind uint8

const (
	Local Kind = iota
	Global
)

func (k Kind) String() string {
	switch k {
	case Local:
		return "local"
	case Global:
		return "global"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Sample is one centrality reading for a peer.
//
// Samples order by descending Score, but identify by Peer alone:
// two samples for one peer with different scores are distinct pool entries
// that still count as the same peer for membership checks.
type Sample struct {
	Peer  model.NodeID
	Score float64
	Kind  Kind
}

// SamePeer reports whether s and o are samples of the same peer.
func (s Sample) SamePeer(o Sample) bool {
	return s.Peer == o.Peer
}

// ContainsPeer reports whether any sample in samples is for peer.
func ContainsPeer(samples []Sample, peer model.NodeID) bool {
	for _, s := range samples {
		if s.Peer == peer {
			return true
		}
	}
	return false
}
