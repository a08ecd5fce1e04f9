package community_test

import (
	"testing"
	"time"

	"github.com/signalsfoundry/socleer/model"
	"github.com/signalsfoundry/socleer/routing"
	"github.com/signalsfoundry/socleer/routing/community"
	"github.com/signalsfoundry/socleer/routing/history"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

func contact(startSec, endSec int) history.Interval {
	return history.Interval{
		Start: epoch.Add(time.Duration(startSec) * time.Second),
		End:   epoch.Add(time.Duration(endSec) * time.Second),
	}
}

func TestNew_Selectors(t *testing.T) {
	t.Parallel()

	s, err := community.New("", community.Settings{})
	require.NoError(t, err)
	require.IsType(t, &community.Simple{}, s)

	s, err = community.New("KCliqueCommunityDetection", community.Settings{})
	require.NoError(t, err)
	require.IsType(t, &community.KClique{}, s)

	_, err = community.New("modularity", community.Settings{})
	require.ErrorIs(t, err, routing.ErrConfiguration)
}

func TestSimple_FamiliarAfterThreshold(t *testing.T) {
	t.Parallel()

	self, peer := model.NodeID(1), model.NodeID(2)
	s := community.NewSimple(10*time.Second, 0.6)
	other := community.NewSimple(10*time.Second, 0.6)

	s.OnNewContact(self, peer, other)
	require.True(t, s.Contains(self), "a node is always in its own community")
	require.False(t, s.Contains(peer))

	s.OnContactEnded(self, peer, other, []history.Interval{contact(0, 6)})
	require.False(t, s.Contains(peer), "6s is below the threshold")

	s.OnContactEnded(self, peer, other, []history.Interval{contact(0, 6), contact(20, 25)})
	require.True(t, s.Contains(peer), "11s crosses the threshold")
	require.True(t, s.FamiliarSet().Contains(peer))
	require.Equal(t, []model.NodeID{1, 2}, s.LocalCommunity().Members())
}

func TestSimple_AdmitsPeerThroughSharedFamiliars(t *testing.T) {
	t.Parallel()

	threshold := 10 * time.Second
	long := []history.Interval{contact(0, 60)}

	// a knows 3 and 4 well.
	a := community.NewSimple(threshold, 0.6)
	a.OnContactEnded(1, 3, nil, long)
	a.OnContactEnded(1, 4, nil, long)

	// b's familiar set is {3, 4}, all of which are in a's community.
	b := community.NewSimple(threshold, 0.6)
	b.OnContactEnded(2, 3, nil, long)
	b.OnContactEnded(2, 4, nil, long)

	a.OnNewContact(1, 2, b)
	require.True(t, a.Contains(2))

	// c's familiar set {5} shares nothing with a's community.
	c := community.NewSimple(threshold, 0.6)
	c.OnContactEnded(6, 5, nil, long)
	a.OnNewContact(1, 6, c)
	require.False(t, a.Contains(6))
}

func TestSimple_ReplicateIsFresh(t *testing.T) {
	t.Parallel()

	s := community.NewSimple(time.Second, 0.6)
	s.OnContactEnded(1, 2, nil, []history.Interval{contact(0, 5)})
	require.True(t, s.Contains(2))

	r := s.Replicate()
	require.False(t, r.Contains(2))
	require.Zero(t, r.LocalCommunity().Len())

	lc := s.LocalCommunity()
	lc.Add(99)
	require.False(t, s.Contains(99), "LocalCommunity must return a copy")
}

func TestKClique_AdmitsWithKMinusOneCommonFamiliars(t *testing.T) {
	t.Parallel()

	threshold := 10 * time.Second
	long := []history.Interval{contact(0, 60)}

	a := community.NewKClique(threshold, 3)
	a.OnContactEnded(1, 3, nil, long)
	a.OnContactEnded(1, 4, nil, long)

	b := community.NewKClique(threshold, 3)
	b.OnContactEnded(2, 3, nil, long)
	require.False(t, b.Contains(4))

	// b only shares one familiar (3) with a's community: not enough for k=3.
	a.OnNewContact(1, 2, b)
	require.False(t, a.Contains(2))

	b.OnContactEnded(2, 4, nil, long)
	a.OnNewContact(1, 2, b)
	require.True(t, a.Contains(2))

	fs, ok := a.FamiliarsOf(2)
	require.True(t, ok)
	require.Equal(t, []model.NodeID{3, 4}, fs.Members())
}

func TestKClique_AdmitsMembersOfPeerCommunity(t *testing.T) {
	t.Parallel()

	threshold := 10 * time.Second
	long := []history.Interval{contact(0, 60)}

	// a's community: {1, 3, 4}.
	a := community.NewKClique(threshold, 2)
	a.OnContactEnded(1, 3, nil, long)
	a.OnContactEnded(1, 4, nil, long)

	// c is familiar with 3. b met c and learned that.
	c := community.NewKClique(threshold, 2)
	c.OnContactEnded(7, 3, nil, long)

	b := community.NewKClique(threshold, 2)
	b.OnContactEnded(2, 3, nil, long)
	b.OnContactEnded(2, 7, c, long)
	require.True(t, b.Contains(7))

	a.OnNewContact(1, 2, b)
	require.True(t, a.Contains(2), "b is familiar with 3")
	require.True(t, a.Contains(7), "7 is in b's community and familiar with 3")
}
