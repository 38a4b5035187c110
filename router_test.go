package fabric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshakeRelayRewritesFrom(t *testing.T) {
	d, cancel := newTestDispatcher(t)
	defer cancel()

	a := &fakeTransport{}
	idA, _ := d.Connect(a)
	b := &fakeTransport{}
	idB, _ := d.Connect(b)
	settle(d)

	d.Message(idA, []byte(`{"type":"offer","target":"`+idB.String()+`","payload":{"sdp":"x"}}`))
	settle(d)

	offers := b.typesOf("offer")
	require.Len(t, offers, 1)
	assert.Equal(t, idA.String(), offers[0]["from"])
	assert.Empty(t, a.typesOf("offer"))
}

func TestHandshakeUnknownTargetIsDropped(t *testing.T) {
	d, cancel := newTestDispatcher(t)
	defer cancel()

	a := &fakeTransport{}
	idA, _ := d.Connect(a)
	settle(d)

	d.Message(idA, []byte(`{"type":"offer","target":"00000000-0000-0000-0000-000000000000","payload":{}}`))
	settle(d)

	assert.Empty(t, a.typesOf("offer"))
}

func TestCmdFanoutIncludesBroadcaster(t *testing.T) {
	d, cancel := newTestDispatcher(t)
	defer cancel()

	b, bTr := connectAndRegister(d, "broadcaster")
	_, l1Tr := connectAndRegister(d, "listener")

	d.Message(b, []byte(`{"type":"cmd","payload":{"action":"mute"}}`))
	settle(d)

	assert.Len(t, bTr.typesOf(typeCmd), 1)
	assert.Len(t, l1Tr.typesOf(typeCmd), 1)
}

func TestCmdFromListenerIsIgnored(t *testing.T) {
	d, cancel := newTestDispatcher(t)
	defer cancel()

	_, bTr := connectAndRegister(d, "broadcaster")
	l1, _ := connectAndRegister(d, "listener")

	d.Message(l1, []byte(`{"type":"cmd","payload":{"action":"mute"}}`))
	settle(d)

	assert.Empty(t, bTr.typesOf(typeCmd))
}

func TestMetadataFromListenerIsIgnored(t *testing.T) {
	d, cancel := newTestDispatcher(t)
	defer cancel()

	_, bTr := connectAndRegister(d, "broadcaster")
	l1, l1Tr := connectAndRegister(d, "listener")

	d.Message(l1, []byte(`{"type":"metadata","payload":{"title":"x"}}`))
	settle(d)

	assert.Empty(t, bTr.typesOf(typeMetadata))
	assert.Empty(t, l1Tr.typesOf(typeMetadata))
}

func TestMetadataFieldsMergeIntoEnvelope(t *testing.T) {
	d, cancel := newTestDispatcher(t)
	defer cancel()

	b, _ := connectAndRegister(d, "broadcaster")
	_, l1Tr := connectAndRegister(d, "listener")

	d.Message(b, []byte(`{"type":"metadata","payload":{"title":"On Air"}}`))
	settle(d)

	meta := l1Tr.typesOf(typeMetadata)
	require.Len(t, meta, 1)
	assert.Equal(t, "On Air", meta[0]["title"])
}

func TestRoomMessageReachesDirectChildrenOnly(t *testing.T) {
	d, cancel := newTestDispatcher(t)
	defer cancel()

	b, _ := connectAndRegister(d, "broadcaster")
	l1, l1Tr := connectAndRegister(d, "listener")
	_, l2Tr := connectAndRegister(d, "listener")
	_, l3Tr := connectAndRegister(d, "listener") // grandchild, under l1

	d.Message(b, []byte(`{"type":"room-message","payload":{"text":"hi"}}`))
	settle(d)

	require.Len(t, l1Tr.typesOf(typeRoomMsg), 1)
	require.Len(t, l2Tr.typesOf(typeRoomMsg), 1)
	assert.Empty(t, l3Tr.typesOf(typeRoomMsg))

	// l1 forwards its own room-message only to its own children (l3),
	// never recursively further down from b's original send.
	d.Message(l1, []byte(`{"type":"room-message","payload":{"text":"deep"}}`))
	settle(d)
	assert.Len(t, l3Tr.typesOf(typeRoomMsg), 1)
}

func TestMalformedFrameIsDroppedSilently(t *testing.T) {
	d, cancel := newTestDispatcher(t)
	defer cancel()

	tr := &fakeTransport{}
	id, _ := d.Connect(tr)
	d.Message(id, []byte(`not json`))
	d.Message(id, []byte(`{"type":"unknown-type"}`))
	settle(d)

	assert.Empty(t, tr.messages())
	assert.False(t, tr.isClosed())
}
