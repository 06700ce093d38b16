package realtime

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEnvelopeRoundTrip(t *testing.T) {
	env := NewEnvelope(EventMoveMade, MoveMadePayload{
		RoomID: 3, MatchID: 7, Row: 7, Col: 11, Symbol: "X", Turn: "O",
	})
	require.Equal(t, EventMoveMade, env.Event)

	var p MoveMadePayload
	require.NoError(t, json.Unmarshal(env.Data, &p))
	require.Equal(t, int64(3), p.RoomID)
	require.Equal(t, "X", p.Symbol)
	require.Equal(t, "O", p.Turn)
}

func TestNewEnvelopeWithoutPayload(t *testing.T) {
	env := NewEnvelope(EventRoomClosed, nil)
	require.Equal(t, EventRoomClosed, env.Event)
	require.Nil(t, env.Data)
}

func TestHandshakeTokenSources(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=from-query", nil)
	require.Equal(t, "from-query", handshakeToken(r))

	r = httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer from-header")
	require.Equal(t, "from-header", handshakeToken(r))

	// query string wins when both are present
	r = httptest.NewRequest("GET", "/ws?token=from-query", nil)
	r.Header.Set("Authorization", "Bearer from-header")
	require.Equal(t, "from-query", handshakeToken(r))

	r = httptest.NewRequest("GET", "/ws", nil)
	require.Equal(t, "", handshakeToken(r))

	r = httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	require.Equal(t, "", handshakeToken(r))
}
