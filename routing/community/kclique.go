package community

import (
	"time"

	"github.com/signalsfoundry/socleer/model"
	"github.com/signalsfoundry/socleer/routing/history"
)

// KClique is the K-CLIQUE community detection strategy.
//
// Besides its own familiar set it remembers the familiar sets of the peers
// it has met. A node joins the local community when at least k-1 of its
// familiar peers are already members.
type KClique struct {
	threshold time.Duration
	k         int

	familiar model.NodeSet
	local    model.NodeSet

	// Familiar sets learned from peers, by peer.
	familiarsOf map[model.NodeID]model.NodeSet
}

// NewKClique returns an empty KClique strategy.
func NewKClique(threshold time.Duration, k int) *KClique {
	return &KClique{
		threshold:   threshold,
		k:           k,
		familiarsOf: make(map[model.NodeID]model.NodeSet),
	}
}

// FamiliarsOf is implemented by strategies that remember other nodes'
// familiar sets, so they can be passed along on contact.
type FamiliarsOf interface {
	FamiliarsOf(id model.NodeID) (model.NodeSet, bool)
}

func (c *KClique) OnNewContact(self, peer model.NodeID, peerCommunity Strategy) {
	c.local.Add(self)

	pf := familiarOf(peerCommunity)
	c.familiarsOf[peer] = pf

	if !c.local.Contains(peer) && c.qualifies(pf) {
		c.local.Add(peer)
	}
	if !c.local.Contains(peer) {
		return
	}

	// The peer is one of us; consider the members of its community as well.
	remote, _ := peerCommunity.(FamiliarsOf)
	peerLocal := peerCommunity.LocalCommunity()
	for _, h := range peerLocal.Members() {
		if h == self || c.local.Contains(h) {
			continue
		}
		fs, ok := c.familiarsOf[h]
		if !ok && remote != nil {
			if fs, ok = remote.FamiliarsOf(h); ok {
				c.familiarsOf[h] = fs
			}
		}
		if ok && c.qualifies(fs) {
			c.local.Add(h)
		}
	}
}

func (c *KClique) OnContactEnded(self, peer model.NodeID, peerCommunity Strategy, hist []history.Interval) {
	c.local.Add(self)
	if c.familiar.Contains(peer) {
		return
	}
	if history.TotalDuration(hist) > c.threshold {
		c.familiar.Add(peer)
		c.local.Add(peer)
		c.familiarsOf[peer] = familiarOf(peerCommunity)
	}
}

func (c *KClique) qualifies(fs model.NodeSet) bool {
	return fs.IntersectionLen(c.local) >= c.k-1
}

func (c *KClique) Contains(id model.NodeID) bool {
	return c.local.Contains(id)
}

func (c *KClique) LocalCommunity() model.NodeSet {
	return c.local.Clone()
}

func (c *KClique) FamiliarSet() model.NodeSet {
	return c.familiar.Clone()
}

func (c *KClique) FamiliarsOf(id model.NodeID) (model.NodeSet, bool) {
	fs, ok := c.familiarsOf[id]
	if !ok {
		return model.NodeSet{}, false
	}
	return fs.Clone(), true
}

func (c *KClique) Replicate() Strategy {
	return NewKClique(c.threshold, c.k)
}
