package fabric

import "time"

// sweepLiveness is the periodic liveness sweep: any participant whose
// last heartbeat is older than the timeout has its transport terminated.
// It never mutates the registry itself - termination feeds
// back as a close event through the normal departure path, keeping every
// tree mutation centralized in handleClose.
func (d *Dispatcher) sweepLiveness(now time.Time) {
	timeout := d.heartbeat
	for _, id := range d.connectOrder {
		p, ok := d.participants[id]
		if !ok {
			continue
		}
		if now.Sub(p.LastSeen) > timeout {
			if p.Transport != nil {
				p.Transport.Close()
			}
		}
	}
}

// touch refreshes a participant's liveness timestamp. A repeated
// heartbeat from a live participant is idempotent: it only ever updates
// LastSeen, never the tree.
func (d *Dispatcher) touch(id ID, now time.Time) {
	if p, ok := d.participants[id]; ok {
		p.LastSeen = now
	}
}
