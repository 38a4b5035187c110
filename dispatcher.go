package fabric

import (
	"context"
	"time"

	"github.com/broadcastmesh/fabric/internal/colorlog"
	"github.com/broadcastmesh/fabric/internal/config"
)

// tickKind distinguishes the two timers that drive background work.
type tickKind int

const (
	tickSweep tickKind = iota
	tickRebalance
)

type cmdKind int

const (
	cmdConnect cmdKind = iota
	cmdMessage
	cmdClose
	cmdTick
	cmdSnapshot
)

// dispatchCmd is the single type flowing through Dispatcher.cmds: the
// "single writer" discipline is realized as one goroutine draining this
// channel, which totally orders every mutation of the registry.
type dispatchCmd struct {
	kind     cmdKind
	id       ID
	label    string
	tport    Transport
	raw      []byte
	tick     tickKind
	now      time.Time
	snapshot chan []Snapshot
}

// Dispatcher owns the participant registry and is its only writer. All
// other components - the connection endpoint, the timers, the HTTP admin
// surface - talk to it only through Connect, Message, Close, Tick and
// Snapshot, which enqueue work on cmds.
type Dispatcher struct {
	participants map[ID]*Participant

	// connectOrder is every live participant in the order its transport
	// was accepted; it is the deterministic enumeration order for
	// liveness sweeps, broadcast fan-out, and rebalancer candidate
	// listing.
	connectOrder []ID
	// registeredOrder is every listener in the order it sent `register`;
	// it is the order retryOrphans retries orphans in.
	registeredOrder []ID

	broadcaster    ID
	hasBroadcaster bool

	croot, cnode int
	heartbeat    time.Duration

	cmds chan dispatchCmd
	done chan struct{}
}

// NewDispatcher builds a Dispatcher from the given tunables. Call Run to
// start its goroutine.
func NewDispatcher(t config.Tunables) *Dispatcher {
	return &Dispatcher{
		participants: make(map[ID]*Participant),
		croot:        t.Croot,
		cnode:        t.Cnode,
		heartbeat:    t.Heartbeat(),
		cmds:         make(chan dispatchCmd, 64),
		done:         make(chan struct{}),
	}
}

// Run drains the command channel until ctx is canceled. It must run in
// its own goroutine; every registry mutation happens on this goroutine
// and nowhere else.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-d.cmds:
			d.handle(c)
		}
	}
}

func (d *Dispatcher) handle(c dispatchCmd) {
	switch c.kind {
	case cmdConnect:
		d.handleConnect(c.id, c.label, c.tport, c.now)
	case cmdMessage:
		d.handleMessage(c.id, c.raw, c.now)
	case cmdClose:
		d.handleClose(c.id)
	case cmdTick:
		switch c.tick {
		case tickSweep:
			d.sweepLiveness(c.now)
		case tickRebalance:
			d.rebalance()
		}
	case cmdSnapshot:
		c.snapshot <- d.buildSnapshot()
	}
}

// Connect registers a new transport and returns the (id, label) pair
// assigned to it. ID and label allocation does not touch the registry,
// so it can happen off the dispatcher goroutine; only the resulting
// registration is serialized.
func (d *Dispatcher) Connect(t Transport) (ID, string) {
	id := NewID()
	label := newLabel()
	d.enqueue(dispatchCmd{kind: cmdConnect, id: id, label: label, tport: t, now: time.Now()})
	return id, label
}

// Message enqueues a raw inbound frame for processing.
func (d *Dispatcher) Message(id ID, raw []byte) {
	d.enqueue(dispatchCmd{kind: cmdMessage, id: id, raw: raw, now: time.Now()})
}

// Close enqueues a participant departure.
func (d *Dispatcher) Close(id ID) {
	d.enqueue(dispatchCmd{kind: cmdClose, id: id})
}

// Tick enqueues a timer firing.
func (d *Dispatcher) Tick(kind tickKind) {
	d.enqueue(dispatchCmd{kind: cmdTick, tick: kind, now: time.Now()})
}

// Snapshot returns a consistent, point-in-time copy of the registry for
// the admin view. It is itself a command on the same channel as every
// mutation, so the copy can never be torn.
func (d *Dispatcher) Snapshot() []Snapshot {
	reply := make(chan []Snapshot, 1)
	d.enqueue(dispatchCmd{kind: cmdSnapshot, snapshot: reply})
	return <-reply
}

func (d *Dispatcher) enqueue(c dispatchCmd) {
	select {
	case d.cmds <- c:
	case <-d.done:
	}
}

func (d *Dispatcher) handleConnect(id ID, label string, t Transport, now time.Time) {
	d.participants[id] = newParticipant(id, label, t, now)
	d.connectOrder = append(d.connectOrder, id)
	colorlog.Lvl2f("connect %s (%s)", id, label)
}

func (d *Dispatcher) handleMessage(id ID, raw []byte, now time.Time) {
	p, ok := d.participants[id]
	if !ok {
		return
	}
	msg := parseInbound(raw)
	if msg == nil {
		return
	}

	switch m := msg.(type) {
	case registerMsg:
		d.handleRegister(id, m)
	case heartbeatMsg:
		d.touch(id, now)
	case handshakeMsg:
		d.routeHandshake(id, m)
	case cmdMsg:
		d.routeCmd(id, m)
	case metadataMsg:
		d.routeMetadata(id, m)
	case roomMessageMsg:
		d.routeRoomMessage(id, m)
	default:
		// Unreachable: parseInbound never returns an unhandled
		// variant, but keep the switch exhaustive in spirit without
		// a silent fallthrough.
		colorlog.Warnf("dropping message of unhandled shape from %s", p.ID)
	}
}

func (d *Dispatcher) handleRegister(id ID, m registerMsg) {
	p, ok := d.participants[id]
	if !ok || p.Role != Unregistered {
		return
	}

	switch m.Role {
	case "broadcaster":
		if d.hasBroadcaster {
			// Second broadcaster: rejected silently.
			colorlog.Warnf("rejecting second broadcaster registration from %s", id)
			return
		}
		p.Role = Broadcaster
		d.broadcaster = id
		d.hasBroadcaster = true
		d.sendTo(id, registeredAsBroadcaster(id, p.Label))
		d.retryOrphans()

	case "listener":
		p.Role = Listener
		d.registeredOrder = append(d.registeredOrder, id)
		d.place(id)

	default:
		// Unrecognized role value: silent drop.
	}
}

func (d *Dispatcher) handleClose(id ID) {
	p, ok := d.participants[id]
	if !ok {
		return
	}

	children := append([]ID(nil), p.Children...)
	wasBroadcaster := p.Role == Broadcaster
	parentID := p.Parent
	hadParent := p.HasParent

	delete(d.participants, id)
	d.connectOrder = removeID(d.connectOrder, id)

	if wasBroadcaster {
		d.hasBroadcaster = false
		d.broadcaster = NilID
	} else if hadParent {
		if parent, ok := d.participants[parentID]; ok {
			parent.removeChild(id)
			d.sendTo(parentID, childLeft(id, p.Label))
		}
	}

	d.reassignOrphansOf(id, children)
	// reassignOrphansOf only re-homes id's own former children; a
	// listener orphaned earlier by a capacity-exhaustion failure is a
	// different participant and needs its own retry now that this
	// departure may have freed a slot.
	d.retryOrphans()
	colorlog.Lvl2f("close %s", id)
}

func removeID(ids []ID, target ID) []ID {
	for i, id := range ids {
		if id.Equal(target) {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
