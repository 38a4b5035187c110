package fabric

import (
	"encoding/json"

	"golang.org/x/xerrors"
)

// Inbound message type tags.
const (
	typeRegister  = "register"
	typeHeartbeat = "heartbeat"
	typeOffer     = "offer"
	typeAnswer    = "answer"
	typeCandidate = "candidate"
	typeCmd       = "cmd"
	typeMetadata  = "metadata"
	typeRoomMsg   = "room-message"
)

// Outbound message type tags.
const (
	outTypeRegisteredBroadcaster = "registered-as-broadcaster"
	outTypeRoomAssigned          = "room-assigned"
	outTypeListenerJoined        = "listener-joined"
	outTypeReassigned            = "reassigned"
	outTypeChildLeft             = "child-left"
)

// envelope is the only shape every inbound frame is guaranteed to match:
// a string type tag. Everything else is decoded from the same raw bytes
// once the tag is known: inboundMessage below is a tagged union over
// every wire shape, and dispatch on it is a type switch, not a chain of
// string comparisons re-parsing the frame.
type envelope struct {
	Type string `json:"type"`
}

// inboundMessage is the sum type of every frame a participant may send.
// Each wire shape is its own concrete type; parseInbound picks which one
// from the envelope's type tag.
type inboundMessage interface {
	isInbound()
}

type registerMsg struct {
	Role     string `json:"role"`
	CustomID string `json:"customId,omitempty"`
}

func (registerMsg) isInbound() {}

type heartbeatMsg struct{}

func (heartbeatMsg) isInbound() {}

type handshakeMsg struct {
	kind    string // "offer" | "answer" | "candidate"
	Target  string          `json:"target"`
	Payload json.RawMessage `json:"payload"`
}

func (handshakeMsg) isInbound() {}

type cmdMsg struct {
	Payload json.RawMessage `json:"payload"`
}

func (cmdMsg) isInbound() {}

type metadataMsg struct {
	Payload json.RawMessage `json:"payload"`
}

func (metadataMsg) isInbound() {}

type roomMessageMsg struct {
	Payload json.RawMessage `json:"payload"`
}

func (roomMessageMsg) isInbound() {}

// parseInbound decodes a single raw JSON frame into its tagged union
// member. Malformed frames and unrecognized types both return nil and
// are silently dropped rather than treated as connection-terminating
// errors.
func parseInbound(raw []byte) inboundMessage {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil
	}
	switch env.Type {
	case typeRegister:
		var m registerMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil
		}
		return m
	case typeHeartbeat:
		return heartbeatMsg{}
	case typeOffer, typeAnswer, typeCandidate:
		var m handshakeMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil
		}
		m.kind = env.Type
		return m
	case typeCmd:
		var m cmdMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil
		}
		return m
	case typeMetadata:
		var m metadataMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil
		}
		return m
	case typeRoomMsg:
		var m roomMessageMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil
		}
		return m
	default:
		return nil
	}
}

// outbound frame builders. Kept as plain maps (rather than structs) since
// some outbound shapes merge extra fields ad hoc (e.g. metadata's payload
// fields merge into the envelope); a map marshals whatever shape each
// caller assembles without a struct per variant.

func registeredAsBroadcaster(id ID, label string) map[string]interface{} {
	return map[string]interface{}{
		"type":  outTypeRegisteredBroadcaster,
		"id":    id.String(),
		"label": label,
	}
}

func roomAssigned(label string, parent ID, hasParent bool) map[string]interface{} {
	m := map[string]interface{}{
		"type":  outTypeRoomAssigned,
		"label": label,
	}
	if hasParent {
		m["parent"] = parent.String()
	} else {
		m["parent"] = nil
	}
	return m
}

func listenerJoined(id ID, childLabel string) map[string]interface{} {
	return map[string]interface{}{
		"type":        outTypeListenerJoined,
		"id":          id.String(),
		"child_label": childLabel,
	}
}

func reassigned(newParent ID, hasParent bool) map[string]interface{} {
	m := map[string]interface{}{"type": outTypeReassigned}
	if hasParent {
		m["new_parent"] = newParent.String()
	} else {
		m["new_parent"] = nil
	}
	return m
}

func childLeft(id ID, label string) map[string]interface{} {
	return map[string]interface{}{
		"type":  outTypeChildLeft,
		"id":    id.String(),
		"label": label,
	}
}

func relayedHandshake(kind string, from ID, payload json.RawMessage) map[string]interface{} {
	return map[string]interface{}{
		"type":    kind,
		"from":    from.String(),
		"payload": payload,
	}
}

func cmdFanout(payload json.RawMessage) map[string]interface{} {
	return map[string]interface{}{
		"type": typeCmd,
		"cmd":  payload,
	}
}

func metadataFanout(payload json.RawMessage) (map[string]interface{}, error) {
	out := map[string]interface{}{"type": typeMetadata}
	if len(payload) > 0 {
		var fields map[string]interface{}
		if err := json.Unmarshal(payload, &fields); err != nil {
			return nil, xerrors.Errorf("metadata payload is not an object: %v", err)
		}
		for k, v := range fields {
			out[k] = v
		}
	}
	return out, nil
}

func roomMessageFanout(from ID, payload json.RawMessage) map[string]interface{} {
	return map[string]interface{}{
		"type":    typeRoomMsg,
		"from":    from.String(),
		"payload": payload,
	}
}
