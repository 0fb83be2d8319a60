package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/plottwist/docstore"
	"github.com/Seednode/plottwist/games/plottwist"
)

type testServer struct {
	*httptest.Server
	store *docstore.Memory

	mu     sync.Mutex
	logged []error
}

// serverErrors returns the errors handlers have reported so far.
func (s *testServer) serverErrors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.logged...)
}

func newTestServer(t *testing.T, mutate ...func(*Config)) *testServer {
	t.Helper()

	cfg := &Config{port: 8080, store: storeMemory}
	for _, m := range mutate {
		m(cfg)
	}

	store := docstore.NewMemory(0)
	t.Cleanup(func() { _ = store.Close() })

	ts := &testServer{store: store}

	errs := make(chan error, 64)
	go func() {
		for err := range errs {
			ts.mu.Lock()
			ts.logged = append(ts.logged, err)
			ts.mu.Unlock()
		}
	}()

	ts.Server = httptest.NewServer(newRouter(cfg, store, newMetrics(), errs))
	t.Cleanup(ts.Server.Close)

	return ts
}

func (s *testServer) post(t *testing.T, path string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	resp, err := http.Post(s.URL+path, "application/json", reader)
	require.NoError(t, err)
	defer resp.Body.Close()

	return resp.StatusCode, decodeBody(t, resp)
}

func (s *testServer) get(t *testing.T, path string) (int, map[string]any) {
	t.Helper()

	resp, err := http.Get(s.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	return resp.StatusCode, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()

	require.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return out
}

func (s *testServer) createRoom(t *testing.T, host string) (code, playerID string) {
	t.Helper()

	status, body := s.post(t, "/api/rooms", map[string]string{"hostName": host})
	require.Equal(t, http.StatusCreated, status, body)

	return body["roomCode"].(string), body["playerId"].(string)
}

func (s *testServer) join(t *testing.T, code, name string) string {
	t.Helper()

	status, body := s.post(t, "/api/rooms/"+code+"/join", map[string]string{"playerName": name})
	require.Equal(t, http.StatusOK, status, body)

	return body["playerId"].(string)
}

func TestCreateRoom(t *testing.T) {
	srv := newTestServer(t)

	status, body := srv.post(t, "/api/rooms", map[string]string{"hostName": "Alice"})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, true, body["success"])

	code := body["roomCode"].(string)
	assert.True(t, plottwist.ValidCode(code))
	assert.NotEmpty(t, body["playerId"])

	room := body["room"].(map[string]any)
	assert.Equal(t, code, room["roomCode"])
	assert.Equal(t, "waiting", room["status"])
	assert.Equal(t, "Alice", room["hostName"])

	status, body = srv.get(t, "/api/rooms/"+strings.ToLower(code))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, code, body["room"].(map[string]any)["roomCode"])
}

func TestCreateRoom_Validation(t *testing.T) {
	srv := newTestServer(t)

	status, body := srv.post(t, "/api/rooms", map[string]string{})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "invalid body, validation failed", body["error"])
	assert.Len(t, body["errors"], 1)

	status, body = srv.post(t, "/api/rooms", "{not json")
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, false, body["success"])

	status, body = srv.post(t, "/api/rooms", map[string]string{"hostName": strings.Repeat("x", 30)})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Names must be between 1 and 20 characters", body["error"])
}

func TestGetRoom_NotFound(t *testing.T) {
	srv := newTestServer(t)

	status, body := srv.get(t, "/api/rooms/ZZZZ")
	require.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Room not found", body["error"])
}

func TestStartRoom(t *testing.T) {
	srv := newTestServer(t)
	code, _ := srv.createRoom(t, "Alice")
	srv.join(t, code, "Bob")

	t.Run("missing room", func(t *testing.T) {
		status, body := srv.post(t, "/api/rooms/ZZZZ/start", map[string]string{"hostName": "Alice"})
		require.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "Room not found", body["error"])
	})

	t.Run("not the host", func(t *testing.T) {
		status, body := srv.post(t, "/api/rooms/"+code+"/start", map[string]string{"hostName": "Bob"})
		require.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "Only the host can start the game", body["error"])
	})

	t.Run("unknown player", func(t *testing.T) {
		status, _ := srv.post(t, "/api/rooms/"+code+"/start", map[string]string{"hostName": "Mallory"})
		require.Equal(t, http.StatusForbidden, status)
	})

	t.Run("unreadable body", func(t *testing.T) {
		status, body := srv.post(t, "/api/rooms/"+code+"/start", "{")
		require.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, "Server error", body["error"])
	})

	t.Run("host", func(t *testing.T) {
		status, body := srv.post(t, "/api/rooms/"+code+"/start", map[string]string{"hostName": "Alice"})
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, map[string]any{"success": true}, body)

		_, body = srv.get(t, "/api/rooms/"+code)
		assert.Equal(t, "playing", body["room"].(map[string]any)["status"])
	})

	t.Run("already completed", func(t *testing.T) {
		require.NoError(t, srv.store.Update(context.Background(), plottwist.RoomPath(code), func(current []byte) ([]byte, error) {
			var room map[string]any
			if err := json.Unmarshal(current, &room); err != nil {
				return nil, err
			}
			room["status"] = "completed"
			return json.Marshal(room)
		}))

		status, body := srv.post(t, "/api/rooms/"+code+"/start", map[string]string{"hostName": "Alice"})
		require.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, "Server error", body["error"])

		assert.Empty(t, srv.serverErrors(), "client mistakes are not server errors")
	})
}

func TestGameFlow(t *testing.T) {
	srv := newTestServer(t)

	code, alice := srv.createRoom(t, "Alice")
	bob := srv.join(t, code, "Bob")

	status, body := srv.post(t, "/api/rooms/"+code+"/join", map[string]string{"playerName": "alice"})
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "That name is already taken", body["error"])

	status, _ = srv.post(t, "/api/rooms/ZZZZ/join", map[string]string{"playerName": "Carol"})
	require.Equal(t, http.StatusNotFound, status)

	status, _ = srv.post(t, "/api/rooms/"+code+"/placements", map[string]any{
		"player":     alice,
		"placements": map[string]any{alice: map[string]float64{"x": 0.5, "y": 0.5}},
	})
	require.Equal(t, http.StatusConflict, status)

	status, _ = srv.post(t, "/api/rooms/"+code+"/start", map[string]string{"hostName": "Alice"})
	require.Equal(t, http.StatusOK, status)

	status, body = srv.post(t, "/api/rooms/"+code+"/join", map[string]string{"playerName": "Carol"})
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "Game already in progress", body["error"])

	status, body = srv.post(t, "/api/rooms/"+code+"/placements", map[string]any{
		"player": alice,
		"placements": map[string]any{
			alice: map[string]float64{"x": 0.5, "y": 0.5},
			bob:   map[string]float64{"x": 0, "y": 0},
		},
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, false, body["completed"])

	status, body = srv.post(t, "/api/rooms/"+code+"/placements", map[string]any{
		"player":     alice,
		"placements": map[string]any{bob: map[string]float64{"x": 0.1, "y": 0.1}},
	})
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "Placements already submitted", body["error"])

	status, body = srv.get(t, "/api/rooms/"+code+"/results")
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "Game has not finished yet", body["error"])

	status, body = srv.post(t, "/api/rooms/"+code+"/placements", map[string]any{
		"player": "Bob",
		"placements": map[string]any{
			bob:   map[string]float64{"x": 1, "y": 1},
			alice: map[string]float64{"x": 0.5, "y": 0.5},
		},
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["completed"])

	status, body = srv.get(t, "/api/rooms/"+code+"/results")
	require.Equal(t, http.StatusOK, status)

	results := body["results"].(map[string]any)
	scores := results["scores"].(map[string]any)
	assert.Equal(t, float64(100), scores[alice])
	assert.Equal(t, float64(0), scores[bob])

	standings := results["standings"].([]any)
	require.Len(t, standings, 2)
	assert.Equal(t, "Alice", standings[0].(map[string]any)["name"])
}

func TestSubmitPlacements_Invalid(t *testing.T) {
	srv := newTestServer(t)

	code, alice := srv.createRoom(t, "Alice")
	status, _ := srv.post(t, "/api/rooms/"+code+"/start", map[string]string{"hostName": "Alice"})
	require.Equal(t, http.StatusOK, status)

	status, body := srv.post(t, "/api/rooms/"+code+"/placements", map[string]any{"player": alice})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid body, validation failed", body["error"])

	status, _ = srv.post(t, "/api/rooms/"+code+"/placements", map[string]any{
		"player":     alice,
		"placements": map[string]any{alice: map[string]float64{"x": 2, "y": 0}},
	})
	require.Equal(t, http.StatusBadRequest, status)

	status, body = srv.post(t, "/api/rooms/"+code+"/placements", map[string]any{
		"player":     "Nobody",
		"placements": map[string]any{alice: map[string]float64{"x": 0, "y": 0}},
	})
	require.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Player not found", body["error"])
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{plottwist.ErrRoomNotFound, http.StatusNotFound},
		{plottwist.ErrForbidden, http.StatusForbidden},
		{plottwist.ErrGameAlreadyStarted, http.StatusConflict},
		{plottwist.ErrNameTaken, http.StatusConflict},
		{plottwist.ErrRoomCodeExhausted, http.StatusServiceUnavailable},
		{&plottwist.TransportError{Op: "get", Err: errors.New("connection refused")}, http.StatusInternalServerError},
		{errors.New("anything else"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.status, classify(tc.err).status, tc.err.Error())
	}

	assert.Equal(t, "Server error", classify(errors.New("boom")).message)
}

func TestStreamRoom(t *testing.T) {
	srv := newTestServer(t)
	code, alice := srv.createRoom(t, "Alice")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/rooms/" + code + "/ws?player=" + alice
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	read := func() streamFrame {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var frame streamFrame
		require.NoError(t, conn.ReadJSON(&frame))
		return frame
	}

	first := read()
	assert.Equal(t, "room", first.Type)
	assert.True(t, first.Exists)
	assert.Equal(t, "setup", first.View.Stage)
	assert.Len(t, first.View.Players, 1)

	srv.join(t, code, "Bob")

	second := read()
	assert.Len(t, second.View.Players, 2)
	assert.Len(t, second.Room.Players, 2)

	status, _ := srv.post(t, "/api/rooms/"+code+"/start", map[string]string{"hostName": "Alice"})
	require.Equal(t, http.StatusOK, status)

	third := read()
	assert.Equal(t, "playing", third.View.Stage)
	assert.Equal(t, "playing", third.Room.Status)
	assert.False(t, third.View.AllPinsPlaced)

	require.NoError(t, srv.store.Delete(context.Background(), plottwist.RoomPath(code)))

	gone := read()
	assert.Equal(t, "room", gone.Type)
	assert.False(t, gone.Exists)
	assert.Nil(t, gone.View)
}

type streamFrame struct {
	Type   string `json:"type"`
	Exists bool   `json:"exists"`
	Room   *struct {
		Status  string         `json:"status"`
		Players map[string]any `json:"players"`
	} `json:"room"`
	View *struct {
		Stage         string `json:"stage"`
		Players       []any  `json:"players"`
		AllPinsPlaced bool   `json:"allPinsPlaced"`
	} `json:"view"`
	Error string `json:"error"`
}

func TestServeQR(t *testing.T) {
	srv := newTestServer(t, func(c *Config) { c.baseURL = "https://party.example.com" })
	code, _ := srv.createRoom(t, "Alice")

	resp, err := http.Get(srv.URL + "/api/rooms/" + code + "/qr")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")))

	status, _ := srv.get(t, "/api/rooms/ZZZZ/qr")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestInviteURL(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://localhost:8080/api/rooms/ABCD/qr", nil)

	g := &plotTwist{cfg: &Config{prefix: "/party"}}
	assert.Equal(t, "http://localhost:8080/party/?room=ABCD", g.inviteURL(req, "ABCD"))

	req.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https://localhost:8080/party/?room=ABCD", g.inviteURL(req, "ABCD"))

	g.cfg.baseURL = "https://party.example.com/"
	assert.Equal(t, "https://party.example.com/?room=ABCD", g.inviteURL(req, "ABCD"))
}
