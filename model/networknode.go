package model

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// NodeID identifies a network participant for the lifetime of a simulation.
// IDs are small non-negative integers assigned by the host runtime, which
// lets membership sets be stored as bitsets. Hosts must keep every ID at or
// below MaxNodeID; CheckNodeID enforces that at their boundaries.
type NodeID uint

// MaxNodeID is the largest NodeID a host may assign. A NodeSet holding it
// uses 128 KiB.
const MaxNodeID NodeID = 1<<20 - 1

// ErrNodeIDRange indicates a NodeID above MaxNodeID.
var ErrNodeIDRange = errors.New("node id out of range")

// CheckNodeID returns ErrNodeIDRange when id exceeds MaxNodeID.
func CheckNodeID(id uint64) (NodeID, error) {
	if id > uint64(MaxNodeID) {
		return 0, fmt.Errorf("%w: %d > %d", ErrNodeIDRange, id, MaxNodeID)
	}
	return NodeID(id), nil
}

func (id NodeID) String() string {
	return "n" + strconv.FormatUint(uint64(id), 10)
}

// Message is the routing-relevant view of a message carried through the
// network. Payloads and sizes live with the host runtime.
type Message struct {
	ID      string
	From    NodeID
	To      NodeID // destination
	Created time.Time
}
