package community

import (
	"time"

	"github.com/signalsfoundry/socleer/model"
	"github.com/signalsfoundry/socleer/routing/history"
)

// Simple is the SIMPLE community detection strategy.
//
// A peer becomes familiar, and joins the local community, once its
// cumulative contact time exceeds the threshold. On contact, a peer that is
// not yet a member is also admitted when more than lambda of its familiar
// set already belongs to our community.
type Simple struct {
	threshold time.Duration
	lambda    float64

	familiar model.NodeSet
	local    model.NodeSet
}

// NewSimple returns an empty Simple strategy.
func NewSimple(threshold time.Duration, lambda float64) *Simple {
	return &Simple{threshold: threshold, lambda: lambda}
}

func (s *Simple) OnNewContact(self, peer model.NodeID, peerCommunity Strategy) {
	s.local.Add(self)
	if s.local.Contains(peer) {
		return
	}

	pf := familiarOf(peerCommunity)
	if pf.Len() == 0 {
		return
	}
	if float64(pf.IntersectionLen(s.local)) > s.lambda*float64(pf.Len()) {
		s.local.Add(peer)
	}
}

func (s *Simple) OnContactEnded(self, peer model.NodeID, _ Strategy, hist []history.Interval) {
	s.local.Add(self)
	if s.familiar.Contains(peer) {
		return
	}
	if history.TotalDuration(hist) > s.threshold {
		s.familiar.Add(peer)
		s.local.Add(peer)
	}
}

func (s *Simple) Contains(id model.NodeID) bool {
	return s.local.Contains(id)
}

func (s *Simple) LocalCommunity() model.NodeSet {
	return s.local.Clone()
}

func (s *Simple) FamiliarSet() model.NodeSet {
	return s.familiar.Clone()
}

func (s *Simple) Replicate() Strategy {
	return NewSimple(s.threshold, s.lambda)
}
