package fabric

import (
	"sort"

	"github.com/broadcastmesh/fabric/internal/colorlog"
	"github.com/montanaflynn/stats"
)

// candidate is one eligible rebalance destination: a participant that
// can hold a parent role (broadcaster or listener), with its current
// load and capacity.
type candidate struct {
	id       ID
	load     int
	capacity int
}

// rebalance is the periodic convergence loop: any node over its capacity
// has its overflow children - those beyond the capacity threshold, in
// insertion order - relocated to the least-loaded eligible destination.
// It is a best-effort repair, not a global optimizer, so a tick that
// can't find a home for an overflow child just leaves it for the next
// tick.
func (d *Dispatcher) rebalance() {
	candidates := d.loadSortedCandidates()
	d.logLoadStats(candidates)

	// Candidates is re-sorted after every relocation so later overflow
	// children see the updated load. We walk nodeIDs (the overflow
	// sources) from a stable snapshot, since candidates itself mutates
	// as we relocate into it.
	nodeIDs := make([]ID, len(candidates))
	for i, c := range candidates {
		nodeIDs[i] = c.id
	}

	for _, nodeID := range nodeIDs {
		node, ok := d.participants[nodeID]
		if !ok {
			continue
		}
		limit := node.capacity(d.croot, d.cnode)
		for len(node.Children) > limit {
			overflow := node.Children[limit] // first overflow child, insertion order
			dest, ok := d.leastLoadedDestination(nodeID, candidates)
			if !ok {
				break
			}
			d.relocate(overflow, nodeID, dest.id)
			dest.load++
			candidates = resort(candidates)
		}
	}

	// Relocating overflow can free capacity anywhere in the tree, so give
	// any listener still orphaned from an earlier capacity-exhaustion
	// failure another chance to land before the next tick.
	d.retryOrphans()
}

// loadSortedCandidates lists every participant that can be a parent
// (broadcaster or listener), sorted ascending by current child count,
// ties broken by connect order for determinism.
func (d *Dispatcher) loadSortedCandidates() []*candidate {
	var out []*candidate
	for _, id := range d.connectOrder {
		p, ok := d.participants[id]
		if !ok || p.Role == Unregistered {
			continue
		}
		out = append(out, &candidate{
			id:       id,
			load:     len(p.Children),
			capacity: p.capacity(d.croot, d.cnode),
		})
	}
	return resort(out)
}

func resort(c []*candidate) []*candidate {
	sort.SliceStable(c, func(i, j int) bool { return c[i].load < c[j].load })
	return c
}

// leastLoadedDestination returns the first candidate, other than
// exclude, with free capacity.
func (d *Dispatcher) leastLoadedDestination(exclude ID, candidates []*candidate) (*candidate, bool) {
	for _, c := range candidates {
		if c.id.Equal(exclude) {
			continue
		}
		if c.load < c.capacity {
			return c, true
		}
	}
	return nil, false
}

// relocate moves child from its current parent to dest.
func (d *Dispatcher) relocate(childID, fromID, destID ID) {
	from, ok := d.participants[fromID]
	if !ok {
		return
	}
	dest, ok := d.participants[destID]
	if !ok {
		return
	}
	child, ok := d.participants[childID]
	if !ok {
		return
	}

	from.removeChild(childID)
	dest.addChild(childID)
	child.setParent(destID)

	d.sendTo(destID, listenerJoined(childID, child.Label))
	d.sendTo(childID, reassigned(destID, true))
}

// logLoadStats reports the mean and standard deviation of child-count
// load across all eligible parents, for operator visibility into how
// well the tree is converging between rebalance ticks.
func (d *Dispatcher) logLoadStats(candidates []*candidate) {
	if len(candidates) == 0 {
		return
	}
	loads := make([]float64, len(candidates))
	for i, c := range candidates {
		loads[i] = float64(c.load)
	}
	mean, err := stats.Mean(loads)
	if err != nil {
		return
	}
	dev, err := stats.StandardDeviation(loads)
	if err != nil {
		return
	}
	colorlog.Lvl3f("rebalance tick: %d nodes, mean load %.2f, stddev %.2f", len(candidates), mean, dev)
}
