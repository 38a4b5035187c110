package fabric

import "github.com/broadcastmesh/fabric/internal/colorlog"

// This file is the signaling router: handshake relay, broadcaster
// fan-out, and subtree messaging. Like the tree engine, it runs entirely
// inside the dispatcher's single goroutine.

// routeHandshake delivers an offer/answer/candidate to the named target,
// rewriting the envelope to carry the sender's id. Unknown targets are
// silently dropped: peers are expected to time out on their own rather
// than be told "not found".
func (d *Dispatcher) routeHandshake(from ID, m handshakeMsg) {
	targetID, err := parseID(m.Target)
	if err != nil {
		return
	}
	d.sendTo(targetID, relayedHandshake(m.kind, from, m.Payload))
}

// routeCmd fans a broadcaster's `cmd` out to every live participant,
// including the broadcaster itself. Non-broadcaster senders are silently
// ignored.
func (d *Dispatcher) routeCmd(from ID, m cmdMsg) {
	if !d.isBroadcaster(from) {
		return
	}
	msg := cmdFanout(m.Payload)
	for _, id := range d.connectOrder {
		d.sendTo(id, msg)
	}
}

// routeMetadata fans a broadcaster's `metadata` out to every live
// participant, merging the payload's object fields into the envelope. A
// listener sending metadata is silently dropped: only the broadcaster's
// metadata is ambient state worth propagating tree-wide.
func (d *Dispatcher) routeMetadata(from ID, m metadataMsg) {
	if !d.isBroadcaster(from) {
		return
	}
	msg, err := metadataFanout(m.Payload)
	if err != nil {
		colorlog.Warnf("dropping malformed metadata from %s: %v", from, err)
		return
	}
	for _, id := range d.connectOrder {
		d.sendTo(id, msg)
	}
}

// routeRoomMessage forwards a `room-message` to the sender's direct
// children only - not recursively.
func (d *Dispatcher) routeRoomMessage(from ID, m roomMessageMsg) {
	sender, ok := d.participants[from]
	if !ok {
		return
	}
	msg := roomMessageFanout(from, m.Payload)
	for _, childID := range sender.Children {
		d.sendTo(childID, msg)
	}
}

func (d *Dispatcher) isBroadcaster(id ID) bool {
	p, ok := d.participants[id]
	return ok && p.Role == Broadcaster
}

// sendTo best-effort-delivers msg to the named participant. A missing
// participant or a transport that can't accept the send is a silent
// drop; the router and dispatcher never block on it.
func (d *Dispatcher) sendTo(id ID, msg interface{}) {
	p, ok := d.participants[id]
	if !ok || p.Transport == nil {
		return
	}
	p.Transport.Send(msg)
}
