package fabric

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	uuid "gopkg.in/satori/go.uuid.v1"
)

// ID uniquely and permanently identifies a participant, allocated on
// connect and never reused.
type ID uuid.UUID

// NilID is the zero value of ID; it never names a real participant.
var NilID ID

// Equal reports whether two IDs name the same participant.
func (id ID) Equal(other ID) bool {
	return uuid.Equal(uuid.UUID(id), uuid.UUID(other))
}

// String returns the canonical textual form of the ID.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// NewID allocates a fresh, random participant ID.
func NewID() ID {
	return ID(uuid.NewV4())
}

// parseID parses the textual form of an ID as sent over the wire in a
// `target` field. An invalid string can never name a real participant,
// so callers treat a parse error the same as an unknown target: a
// silent drop.
func parseID(s string) (ID, error) {
	u, err := uuid.FromString(s)
	if err != nil {
		return NilID, err
	}
	return ID(u), nil
}

// labelSource is the only mutable global state in this file: a
// package-level random generator for the human-readable "fm" + 4-5
// decimal digit label. It is not part of the tree invariants. Labels are
// allocated in Dispatcher.Connect, on each connection's own goroutine, so
// labelMu guards every use of it.
var labelSource = rand.New(rand.NewSource(time.Now().UnixNano()))
var labelMu sync.Mutex

// newLabel produces a label of the form "fm" followed by 4 to 5 decimal
// digits, e.g. "fm4821" or "fm93104".
func newLabel() string {
	labelMu.Lock()
	defer labelMu.Unlock()
	if labelSource.Intn(2) == 0 {
		return fmt.Sprintf("fm%04d", labelSource.Intn(10000))
	}
	return fmt.Sprintf("fm%05d", labelSource.Intn(100000))
}

// Role is a participant's place in the fabric. It starts Unregistered and
// transitions exactly once, to Broadcaster or Listener.
type Role int

const (
	// Unregistered is the role every participant holds between transport
	// accept and the first `register` message.
	Unregistered Role = iota
	// Broadcaster is the unique root of the distribution tree.
	Broadcaster
	// Listener is any non-root participant.
	Listener
)

func (r Role) String() string {
	switch r {
	case Broadcaster:
		return "broadcaster"
	case Listener:
		return "listener"
	default:
		return "unregistered"
	}
}

// Transport is the opaque handle the dispatcher uses to reach a
// participant. Send must be non-blocking and best-effort: a slow or dead
// peer is dropped, never awaited.
type Transport interface {
	// Send best-effort-delivers v, JSON-encoded, to the participant. It
	// never blocks the caller and never returns an error the caller must
	// act on; delivery failures are logged and otherwise swallowed.
	Send(v interface{})
	// Close terminates the underlying connection. Idempotent.
	Close()
}

// Participant is the sole entity in the data model.
type Participant struct {
	ID       ID
	Label    string
	Role     Role
	Parent   ID
	HasParent bool
	Children []ID // insertion order, authoritative for BFS tie-breaking
	LastSeen time.Time
	Transport Transport
}

// newParticipant creates an Unregistered participant ready for the
// dispatcher to register.
func newParticipant(id ID, label string, t Transport, now time.Time) *Participant {
	return &Participant{
		ID:        id,
		Label:     label,
		Role:      Unregistered,
		Transport: t,
		LastSeen:  now,
	}
}

// addChild appends c to the children list if not already present,
// preserving insertion order (the BFS tie-break rule).
func (p *Participant) addChild(c ID) {
	for _, existing := range p.Children {
		if existing.Equal(c) {
			return
		}
	}
	p.Children = append(p.Children, c)
}

// removeChild deletes c from the children list, preserving the relative
// order of the remainder.
func (p *Participant) removeChild(c ID) {
	for i, existing := range p.Children {
		if existing.Equal(c) {
			p.Children = append(p.Children[:i], p.Children[i+1:]...)
			return
		}
	}
}

// clearParent marks p as an orphan.
func (p *Participant) clearParent() {
	p.HasParent = false
	p.Parent = NilID
}

// setParent links p to parent.
func (p *Participant) setParent(parent ID) {
	p.HasParent = true
	p.Parent = parent
}

// capacity returns the maximum number of children p may hold, given the
// two tunables Croot (for the broadcaster) and Cnode (for everyone else).
func (p *Participant) capacity(croot, cnode int) int {
	if p.Role == Broadcaster {
		return croot
	}
	return cnode
}
