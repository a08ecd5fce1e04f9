package centrality

import (
	"github.com/signalsfoundry/socleer/routing/community"
	"github.com/signalsfoundry/socleer/routing/history"
)

// Degree scores a node by the number of distinct peers it has ever been in
// contact with. It is stateless.
type Degree struct{}

func (Degree) Global(h history.History) float64 {
	n := 0
	for _, ivs := range h {
		if len(ivs) > 0 {
			n++
		}
	}
	return float64(n)
}

func (Degree) Local(h history.History, c community.Strategy) float64 {
	n := 0
	for peer, ivs := range h {
		if len(ivs) > 0 && c != nil && c.Contains(peer) {
			n++
		}
	}
	return float64(n)
}

func (Degree) Replicate() Strategy { return Degree{} }
