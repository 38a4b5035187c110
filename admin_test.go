package fabric

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAdminRoomsReflectsTree exercises the HTTP admin view end to end: a
// broadcaster with one listener attached shows up in the JSON served at
// /admin/rooms with the shape Snapshot describes.
func TestAdminRoomsReflectsTree(t *testing.T) {
	d, cancel := newTestDispatcher(t)
	defer cancel()

	b, _ := connectAndRegister(d, "broadcaster")
	l1, _ := connectAndRegister(d, "listener")

	srv := &Server{Dispatcher: d}
	req := httptest.NewRequest(http.MethodGet, "/admin/rooms", nil)
	rec := httptest.NewRecorder()
	srv.handleRooms(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var snaps []Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snaps))

	byID := make(map[string]Snapshot)
	for _, s := range snaps {
		byID[s.ID] = s
	}
	require.Contains(t, byID, b.String())
	require.Contains(t, byID, l1.String())
	assert.Nil(t, byID[b.String()].Parent)
	require.NotNil(t, byID[l1.String()].Parent)
	assert.Equal(t, b.String(), *byID[l1.String()].Parent)
	assert.Equal(t, []string{l1.String()}, byID[b.String()].Children)
}

// TestAdminRootOK exercises the liveness root handler.
func TestAdminRootOK(t *testing.T) {
	srv := &Server{}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.handleRoot(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}
