package progressfeed

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestNewHub(t *testing.T) {
	hub := NewHub("run-1", testLogger())

	assert.NotNil(t, hub.clients)
	assert.NotNil(t, hub.register)
	assert.NotNil(t, hub.unregister)
	assert.NotNil(t, hub.broadcast)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_RegisterAndUnregisterClient(t *testing.T) {
	hub := NewHub("run-1", testLogger())
	go hub.Run()

	client := &Client{hub: hub, id: "client-1", runID: "run-1", send: make(chan Event, sendBufferSize)}

	hub.register <- client
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, hub.ClientCount())

	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_ReporterBroadcastsToAllClients(t *testing.T) {
	hub := NewHub("run-1", testLogger())
	go hub.Run()

	client1 := &Client{hub: hub, id: "client-1", runID: "run-1", send: make(chan Event, sendBufferSize)}
	client2 := &Client{hub: hub, id: "client-2", runID: "run-1", send: make(chan Event, sendBufferSize)}
	hub.register <- client1
	hub.register <- client2
	time.Sleep(10 * time.Millisecond)

	report := hub.Reporter()
	report(50, "processing")

	for _, c := range []*Client{client1, client2} {
		select {
		case event := <-c.send:
			assert.Equal(t, 50, event.Percent)
			assert.Equal(t, "processing", event.Message)
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("client %s did not receive event", c.id)
		}
	}
}

func TestHub_ReporterDoesNotBlockWithNoClients(t *testing.T) {
	hub := NewHub("run-1", testLogger())
	report := hub.Reporter()
	// With no Run() goroutine draining the channel, this must not block
	// thanks to the buffered channel + non-blocking select.
	for i := 0; i < 300; i++ {
		report(i, "tick")
	}
}

func TestJWTAuth_GenerateAndAuthenticateViaHeader(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	token, err := auth.GenerateToken("run-42", time.Now().Add(time.Hour))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/progress", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	runID, err := auth.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, "run-42", runID)
}

func TestJWTAuth_AuthenticateViaQueryParam(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	token, err := auth.GenerateToken("run-42", time.Now().Add(time.Hour))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/progress?token="+token, nil)
	runID, err := auth.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, "run-42", runID)
}

func TestJWTAuth_RejectsExpiredToken(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	token, err := auth.GenerateToken("run-42", time.Now().Add(-time.Hour))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/progress?token="+token, nil)
	_, err = auth.Authenticate(req)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTAuth_RejectsWrongSecret(t *testing.T) {
	issuer := NewJWTAuth("test-secret")
	token, err := issuer.GenerateToken("run-42", time.Now().Add(time.Hour))
	require.NoError(t, err)

	verifier := NewJWTAuth("different-secret")
	req := httptest.NewRequest(http.MethodGet, "/progress?token="+token, nil)
	_, err = verifier.Authenticate(req)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTAuth_MissingTokenRejected(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	req := httptest.NewRequest(http.MethodGet, "/progress", nil)
	_, err := auth.Authenticate(req)
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestHandler_RejectsUnauthenticatedUpgrade(t *testing.T) {
	hub := NewHub("run-1", testLogger())
	go hub.Run()
	auth := NewJWTAuth("test-secret")
	handler := NewHandler(hub, auth, testLogger())

	server := httptest.NewServer(handler)
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
