// Package routing defines the contract between a DTN host runtime and the
// per-node decision engines it drives.
//
// The host delivers one event at a time: contact up, contact down, or a
// decision query about a message. Engines answer from their current state
// and never block.
package routing

import (
	"github.com/signalsfoundry/socleer/model"
)

// DecisionEngine is the routing-decision capability set a host runtime
// invokes on each node's engine.
type DecisionEngine interface {
	// ExchangeOnNewContact runs once per new contact, before ContactUp,
	// and updates the state of both self and peer.
	ExchangeOnNewContact(self, peer model.NodeID) error

	// ContactUp is invoked on each side of a newly formed contact.
	ContactUp(self, peer model.NodeID) error

	// ContactDown is invoked on each side of a contact that ended.
	ContactDown(self, peer model.NodeID) error

	// OnNewMessage reports whether a newly created message is kept.
	OnNewMessage(m model.Message) bool

	// IsFinalDestination reports whether node is m's destination.
	IsFinalDestination(m model.Message, node model.NodeID) bool

	// ShouldBuffer reports whether self keeps a message it received.
	ShouldBuffer(m model.Message, self model.NodeID) bool

	// ShouldForward reports whether m should be copied to other.
	ShouldForward(m model.Message, other model.NodeID) (bool, error)

	// ShouldDeleteAfterSend reports whether the local copy of m may be
	// dropped after it was sent to other.
	ShouldDeleteAfterSend(m model.Message, other model.NodeID) (bool, error)

	// ShouldDeleteWhenReportedOld reports whether the local copy of m may be
	// dropped after other reported already having it.
	ShouldDeleteWhenReportedOld(m model.Message, other model.NodeID) (bool, error)

	// Replicate returns a fresh engine configured like the receiver,
	// with independent state.
	Replicate() DecisionEngine
}

// CommunityDetector is implemented by engines that expose their node's local community.
type CommunityDetector interface {
	LocalCommunity() model.NodeSet
}

// Directory is the host-owned lookup from a node to its installed engine.
// Engines use it to read a peer's live state during a contact.
type Directory interface {
	Engine(id model.NodeID) (DecisionEngine, bool)
}

// DirectoryFunc adapts a function to the Directory interface.
type DirectoryFunc func(id model.NodeID) (DecisionEngine, bool)

func (f DirectoryFunc) Engine(id model.NodeID) (DecisionEngine, bool) {
	return f(id)
}
