package fabric

// This file is the tree placement engine: choosing a parent for a
// newcomer or orphan, and repairing the tree when a node departs. Every
// exported behavior here runs from inside the dispatcher's single
// goroutine (dispatcher.go), so no locking is needed: these are plain
// methods on *Dispatcher, not a separate concurrent component.

// bfsFindSlot performs a breadth-first search from the broadcaster and
// returns the first visited participant, not in exclude, whose child
// count is below its capacity. Traversal order within a level follows
// Participant.Children, which is maintained in insertion order - that's
// the tie-break rule for two nodes at the same depth.
func (d *Dispatcher) bfsFindSlot(exclude map[ID]bool) (ID, bool) {
	if !d.hasBroadcaster {
		return NilID, false
	}
	queue := []ID{d.broadcaster}
	visited := map[ID]bool{d.broadcaster: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		p, ok := d.participants[cur]
		if !ok {
			continue
		}
		if !exclude[cur] && len(p.Children) < p.capacity(d.croot, d.cnode) {
			return cur, true
		}
		for _, child := range p.Children {
			if !visited[child] {
				visited[child] = true
				queue = append(queue, child)
			}
		}
	}
	return NilID, false
}

// place attaches listenerID to a parent. It always resolves (no error):
// failure to find a slot leaves the listener an orphan, which is not an
// error condition.
func (d *Dispatcher) place(listenerID ID) {
	listener, ok := d.participants[listenerID]
	if !ok {
		return
	}

	if !d.hasBroadcaster {
		listener.clearParent()
		d.sendTo(listenerID, roomAssigned(listener.Label, NilID, false))
		return
	}

	found, ok := d.bfsFindSlot(nil)
	if !ok {
		listener.clearParent()
		d.sendTo(listenerID, roomAssigned(listener.Label, NilID, false))
		return
	}

	parent := d.participants[found]
	listener.setParent(found)
	parent.addChild(listenerID)

	d.sendTo(listenerID, roomAssigned(listener.Label, found, true))
	d.sendTo(found, listenerJoined(listenerID, listener.Label))
}

// reassignOrphansOf repairs the tree after deadID departs: every child of
// deadID is unlinked and re-placed, excluding deadID itself and the
// child being placed. Callers must remove deadID from the
// registry's children bookkeeping (not just mark it gone) before or
// after this runs; reassignOrphansOf only touches deadID's former
// children, not deadID itself.
func (d *Dispatcher) reassignOrphansOf(deadID ID, children []ID) {
	for _, childID := range children {
		child, ok := d.participants[childID]
		if !ok {
			continue
		}
		child.clearParent()

		exclude := map[ID]bool{deadID: true, childID: true}
		found, ok := d.bfsFindSlot(exclude)
		if !ok {
			d.sendTo(childID, reassigned(NilID, false))
			continue
		}

		parent := d.participants[found]
		child.setParent(found)
		parent.addChild(childID)

		d.sendTo(found, listenerJoined(childID, child.Label))
		d.sendTo(childID, reassigned(found, true))
	}
}

// retryOrphans offers placement to every currently orphaned listener, in
// registration order. A node departure, a rebalance tick, or a
// broadcaster (re-)registering can each free up or create capacity
// somewhere in the tree, so all three call this after they're done
// mutating the tree, to retry any listener left parentless by an earlier
// capacity-exhaustion failure. This repository's chosen resolution for
// what a newly-placed orphan receives: since it already got its initial
// `room-assigned` when it registered, a successful late placement here is
// announced with `reassigned` rather than a second `room-assigned` - the
// parent still gets the usual `listener-joined` trigger to start its
// media offer. An orphan for whom no slot is found yet is left
// untouched: nothing changed for it, so nothing is sent.
func (d *Dispatcher) retryOrphans() {
	for _, id := range d.registeredOrder {
		p, ok := d.participants[id]
		if !ok || p.Role != Listener || p.HasParent {
			continue
		}
		found, ok := d.bfsFindSlot(nil)
		if !ok {
			continue
		}
		parent := d.participants[found]
		p.setParent(found)
		parent.addChild(id)

		d.sendTo(found, listenerJoined(id, p.Label))
		d.sendTo(id, reassigned(found, true))
	}
}
