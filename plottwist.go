/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Plot Twist HTTP API
//
// Routes, all under $prefix/api/rooms:
//   - POST /                  → create a room, caller becomes host
//   - GET  /:code             → room document
//   - POST /:code/join        → add a player while the room is waiting
//   - POST /:code/start       → host-only start
//   - POST /:code/placements  → submit one player's pins
//   - GET  /:code/results     → scores once every player has submitted
//   - GET  /:code/ws          → WebSocket stream of room updates
//   - GET  /:code/qr          → PNG QR code of the invite link

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/samber/lo"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/plottwist/games/plottwist"
)

const (
	maxBodySize = 64 << 10
	qrSize      = 320
	writeWait   = 10 * time.Second
	serverError = "Server error"
)

type apiResponse struct {
	Success bool     `json:"success"`
	Error   string   `json:"error,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

type createRoomRequest struct {
	HostName string `json:"hostName" validate:"required"`
}

type createRoomResponse struct {
	Success  bool            `json:"success"`
	RoomCode string          `json:"roomCode"`
	PlayerID string          `json:"playerId"`
	Room     *plottwist.Room `json:"room"`
}

type roomResponse struct {
	Success bool            `json:"success"`
	Room    *plottwist.Room `json:"room"`
}

type joinRoomRequest struct {
	PlayerName string `json:"playerName" validate:"required"`
}

type joinRoomResponse struct {
	Success  bool   `json:"success"`
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

type startRoomRequest struct {
	HostName string `json:"hostName"`
}

type placementsRequest struct {
	Player     string                     `json:"player" validate:"required"`
	Placements map[string]plottwist.Point `json:"placements" validate:"required,min=1"`
}

type placementsResponse struct {
	Success   bool `json:"success"`
	Completed bool `json:"completed"`
}

type resultsResponse struct {
	Success bool               `json:"success"`
	Results *plottwist.Results `json:"results"`
}

// streamMessage is one frame on a room's WebSocket.
type streamMessage struct {
	Type   string                 `json:"type"`
	Exists bool                   `json:"exists"`
	Room   *plottwist.Room        `json:"room,omitempty"`
	View   *plottwist.SessionView `json:"view,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

type apiFailure struct {
	err     error
	status  int
	message string
	kind    string
}

var apiFailures = []apiFailure{
	{plottwist.ErrRoomNotFound, http.StatusNotFound, "Room not found", "room_not_found"},
	{plottwist.ErrForbidden, http.StatusForbidden, "Only the host can start the game", "forbidden"},
	{plottwist.ErrGameAlreadyStarted, http.StatusConflict, "Game already in progress", "game_already_started"},
	{plottwist.ErrNameTaken, http.StatusConflict, "That name is already taken", "name_taken"},
	{plottwist.ErrGameNotCompleted, http.StatusConflict, "Game has not finished yet", "game_not_completed"},
	{plottwist.ErrGameNotInProgress, http.StatusConflict, "Game is not in progress", "game_not_in_progress"},
	{plottwist.ErrAlreadySubmitted, http.StatusConflict, "Placements already submitted", "already_submitted"},
	{plottwist.ErrPlayerNotFound, http.StatusNotFound, "Player not found", "player_not_found"},
	{plottwist.ErrInvalidName, http.StatusBadRequest, "Names must be between 1 and 20 characters", "invalid_name"},
	{plottwist.ErrInvalidPlacement, http.StatusBadRequest, "Placements must name players in the room and stay inside the board", "invalid_placement"},
	{plottwist.ErrRoomCodeExhausted, http.StatusServiceUnavailable, "No free room code, please try again", "room_code_exhausted"},
}

// classify maps an error from the repository onto its HTTP response.
// Anything unrecognised is a server error.
func classify(err error) apiFailure {
	failure, ok := lo.Find(apiFailures, func(f apiFailure) bool {
		return errors.Is(err, f.err)
	})
	if !ok {
		return apiFailure{err: err, status: http.StatusInternalServerError, message: serverError, kind: "transport"}
	}
	return failure
}

type plotTwist struct {
	cfg      *Config
	repo     *plottwist.Repository
	metrics  *Metrics
	validate *validator.Validate
	upgrader websocket.Upgrader
	errs     chan<- error
}

func newPlotTwist(cfg *Config, repo *plottwist.Repository, metrics *Metrics, errs chan<- error) *plotTwist {
	return &plotTwist{
		cfg:      cfg,
		repo:     repo,
		metrics:  metrics,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(cfg),
		},
		errs: errs,
	}
}

func checkOrigin(cfg *Config) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(cfg.corsOrigins) == 0 {
			return true
		}
		if lo.Contains(cfg.corsOrigins, "*") || lo.Contains(cfg.corsOrigins, origin) {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}

func (g *plotTwist) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	startTime := time.Now()

	data, err := json.Marshal(payload)
	if err != nil {
		g.errs <- err
		status = http.StatusInternalServerError
		data = []byte(`{"success":false,"error":"` + serverError + `"}`)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(g.cfg, w)
	w.WriteHeader(status)

	written, err := w.Write(data)
	if err != nil {
		g.errs <- err

		return
	}

	logf(g.cfg, "SERVE: %s %s %d (%s) to %s in %s",
		r.Method,
		r.URL.Path,
		status,
		humanReadableSize(int64(written)),
		realIP(r),
		time.Since(startTime).Round(time.Microsecond),
	)
}

func (g *plotTwist) writeError(w http.ResponseWriter, r *http.Request, err error) {
	failure := classify(err)

	g.metrics.apiErrors.WithLabelValues(failure.kind).Inc()
	if failure.status == http.StatusInternalServerError {
		g.errs <- err
	}

	g.writeJSON(w, r, failure.status, apiResponse{Error: failure.message})
}

// decode reads a JSON body into v and runs struct validation on it. On
// failure the response has already been written.
func (g *plotTwist) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v); err != nil {
		g.metrics.apiErrors.WithLabelValues("invalid_body").Inc()
		g.writeJSON(w, r, http.StatusBadRequest, apiResponse{Error: "invalid body, could not parse json"})

		return false
	}

	if err := g.validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			g.writeError(w, r, err)

			return false
		}

		g.metrics.apiErrors.WithLabelValues("validation").Inc()
		g.writeJSON(w, r, http.StatusBadRequest, apiResponse{
			Error:  "invalid body, validation failed",
			Errors: lo.Map(fieldErrs, func(item validator.FieldError, _ int) string {
				return item.Error()
			}),
		})

		return false
	}

	return true
}

func (g *plotTwist) createRoom() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req createRoomRequest
		if !g.decode(w, r, &req) {
			return
		}

		room, host, err := g.repo.Create(r.Context(), req.HostName)
		if err != nil {
			g.writeError(w, r, err)

			return
		}

		g.metrics.roomsCreated.Inc()
		logf(g.cfg, "GAMES: Room %s created by %s", room.Code, realIP(r))

		g.writeJSON(w, r, http.StatusCreated, createRoomResponse{
			Success:  true,
			RoomCode: room.Code,
			PlayerID: host.ID,
			Room:     room,
		})
	}
}

func (g *plotTwist) getRoom() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		room, err := g.repo.Room(r.Context(), p.ByName("code"))
		if err != nil {
			g.writeError(w, r, err)

			return
		}

		g.writeJSON(w, r, http.StatusOK, roomResponse{Success: true, Room: room})
	}
}

func (g *plotTwist) joinRoom() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		var req joinRoomRequest
		if !g.decode(w, r, &req) {
			return
		}

		code := plottwist.NormalizeCode(p.ByName("code"))

		player, err := g.repo.Join(r.Context(), code, req.PlayerName)
		if err != nil {
			g.writeError(w, r, err)

			return
		}

		g.metrics.playersJoined.Inc()
		logf(g.cfg, "GAMES: Player joined room %s from %s", code, realIP(r))

		g.writeJSON(w, r, http.StatusOK, joinRoomResponse{
			Success:  true,
			RoomCode: code,
			PlayerID: player.ID,
		})
	}
}

// startRoom only ever answers 200, 403, 404 or 500.
func (g *plotTwist) startRoom() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		var req startRoomRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
			g.metrics.apiErrors.WithLabelValues("invalid_body").Inc()
			g.writeJSON(w, r, http.StatusInternalServerError, apiResponse{Error: serverError})

			return
		}

		room, err := g.repo.StartAsHost(r.Context(), p.ByName("code"), req.HostName)
		switch {
		case err == nil:
		case errors.Is(err, plottwist.ErrRoomNotFound), errors.Is(err, plottwist.ErrForbidden):
			g.writeError(w, r, err)

			return
		default:
			failure := classify(err)
			g.metrics.apiErrors.WithLabelValues(failure.kind).Inc()
			if failure.status == http.StatusInternalServerError {
				g.errs <- err
			}
			g.writeJSON(w, r, http.StatusInternalServerError, apiResponse{Error: serverError})

			return
		}

		g.metrics.gamesStarted.Inc()
		logf(g.cfg, "GAMES: Room %s started with %d players", room.Code, len(room.Players))

		g.writeJSON(w, r, http.StatusOK, apiResponse{Success: true})
	}
}

func (g *plotTwist) submitPlacements() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		var req placementsRequest
		if !g.decode(w, r, &req) {
			return
		}

		room, err := g.repo.SubmitPlacements(r.Context(), p.ByName("code"), req.Player, req.Placements)
		if err != nil {
			g.writeError(w, r, err)

			return
		}

		completed := room.Status == plottwist.StatusCompleted

		g.metrics.submissions.Inc()
		if completed {
			g.metrics.gamesDone.Inc()
			logf(g.cfg, "GAMES: Room %s completed", room.Code)
		}

		g.writeJSON(w, r, http.StatusOK, placementsResponse{Success: true, Completed: completed})
	}
}

func (g *plotTwist) getResults() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		results, err := g.repo.Results(r.Context(), p.ByName("code"))
		if err != nil {
			g.writeError(w, r, err)

			return
		}

		g.writeJSON(w, r, http.StatusOK, resultsResponse{Success: true, Results: results})
	}
}

// streamRoom pushes the room, and the viewer's projection of it, every time
// it changes. The stream ends when the client goes away.
func (g *plotTwist) streamRoom() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		code := plottwist.NormalizeCode(p.ByName("code"))
		viewer := r.URL.Query().Get("player")

		conn, err := g.upgrader.Upgrade(w, r, nil)
		if err != nil {
			g.errs <- err

			return
		}
		defer conn.Close()

		g.metrics.openStreams.Inc()
		defer g.metrics.openStreams.Dec()

		logf(g.cfg, "GAMES: Stream opened for room %s by %s", code, realIP(r))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Nothing is expected from the client; reading only notices it leaving.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.NextReader(); err != nil {
					return
				}
			}
		}()

		updates, stop := g.repo.Subscribe(ctx, code)
		defer stop()

		session := plottwist.NewSession(plottwist.DefaultAxes, nil)

		for update := range updates {
			msg := streamMessage{Type: "room", Exists: update.Exists}

			switch {
			case update.Err != nil:
				g.errs <- update.Err
				msg = streamMessage{Type: "error", Error: serverError}
			case update.Exists:
				session.ApplyRoom(update.Room, viewer)
				view := session.View()
				msg.Room = update.Room
				msg.View = &view
			}

			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				break
			}
		}

		logf(g.cfg, "GAMES: Stream closed for room %s", code)
	}
}

// inviteURL is where a QR code for code points.
func (g *plotTwist) inviteURL(r *http.Request, code string) string {
	base := strings.TrimSuffix(g.cfg.baseURL, "/")
	if base == "" {
		scheme := g.cfg.scheme()
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host + g.cfg.prefix
	}

	return base + "/?room=" + url.QueryEscape(code)
}

func (g *plotTwist) serveQR() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		room, err := g.repo.Room(r.Context(), p.ByName("code"))
		if err != nil {
			g.writeError(w, r, err)

			return
		}

		png, err := qrcode.Encode(g.inviteURL(r, room.Code), qrcode.Medium, qrSize)
		if err != nil {
			g.writeError(w, r, err)

			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(g.cfg, w)

		written, err := w.Write(png)
		if err != nil {
			g.errs <- err

			return
		}

		logf(g.cfg, "SERVE: QR code for room %s (%s) to %s in %s",
			room.Code,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func registerPlotTwistGame(cfg *Config, path string, mux *httprouter.Router, g *plotTwist) {
	base := cfg.prefix + path

	mux.POST(base, g.createRoom())
	mux.GET(base+"/:code", g.getRoom())
	mux.POST(base+"/:code/join", g.joinRoom())
	mux.POST(base+"/:code/start", g.startRoom())
	mux.POST(base+"/:code/placements", g.submitPlacements())
	mux.GET(base+"/:code/results", g.getResults())
	mux.GET(base+"/:code/ws", g.streamRoom())
	mux.GET(base+"/:code/qr", g.serveQR())
}
