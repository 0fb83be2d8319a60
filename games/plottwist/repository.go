/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package plottwist

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/Seednode/plottwist/docstore"
)

// domainErrors are passed through untouched; anything else coming back
// from the store is a transport failure.
var domainErrors = []error{
	ErrRoomNotFound,
	ErrGameAlreadyStarted,
	ErrNameTaken,
	ErrRoomCodeExhausted,
	ErrGameNotCompleted,
	ErrForbidden,
	ErrInvalidName,
	ErrPlayerNotFound,
	ErrGameNotInProgress,
	ErrAlreadySubmitted,
	ErrInvalidPlacement,
}

// Repository performs room operations against a document store. Each
// operation is a single atomic write to the room document.
type Repository struct {
	store        docstore.Store
	catalog      []Axis
	now          func() time.Time
	generateCode func() string
	codeAttempts int

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures a Repository.
type Option func(*Repository)

// WithCatalog replaces the axis catalog.
func WithCatalog(catalog []Axis) Option {
	return func(r *Repository) {
		r.catalog = catalog
	}
}

// WithRand sets the source used for axis selection.
func WithRand(rng *rand.Rand) Option {
	return func(r *Repository) {
		r.rng = rng
	}
}

// WithClock sets the time source for timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

// WithCodeGenerator replaces the room code generator.
func WithCodeGenerator(gen func() string) Option {
	return func(r *Repository) {
		r.generateCode = gen
	}
}

// WithCodeAttempts bounds how many codes Create tries before giving up.
func WithCodeAttempts(n int) Option {
	return func(r *Repository) {
		if n > 0 {
			r.codeAttempts = n
		}
	}
}

// NewRepository creates a repository backed by store.
func NewRepository(store docstore.Store, opts ...Option) *Repository {
	r := &Repository{
		store:        store,
		catalog:      DefaultAxes,
		now:          time.Now,
		generateCode: GenerateCode,
		codeAttempts: defaultCodeAttempts,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) selectAxes() AxisPair {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return SelectAxes(r.catalog, r.rng)
}

func (r *Repository) timestamp() time.Time {
	return r.now().UTC()
}

// Create opens a new room hosted by hostName.
func (r *Repository) Create(ctx context.Context, hostName string) (*Room, *Player, error) {
	name, err := cleanName(hostName)
	if err != nil {
		return nil, nil, err
	}

	now := r.timestamp()
	host := &Player{
		ID:       uuid.NewString(),
		Name:     name,
		IsHost:   true,
		JoinedAt: now,
	}
	axes := r.selectAxes()

	for attempt := 0; attempt < r.codeAttempts; attempt++ {
		code := r.generateCode()

		room := &Room{
			Code:      code,
			CreatedAt: now,
			HostID:    host.ID,
			HostName:  host.Name,
			Status:    StatusWaiting,
			Settings:  Settings{Axes: axes},
			Players:   map[string]*Player{host.ID: host},
			Placements: Matrix{
				host.ID: {},
			},
		}

		data, err := encodeRoom(room)
		if err != nil {
			return nil, nil, err
		}

		err = r.store.Create(ctx, RoomPath(code), data)
		if errors.Is(err, docstore.ErrExists) {
			continue
		}
		if err != nil {
			return nil, nil, &TransportError{Op: "create", Err: err}
		}

		return room, host, nil
	}

	return nil, nil, ErrRoomCodeExhausted
}

// Room returns the current state of a room.
func (r *Repository) Room(ctx context.Context, code string) (*Room, error) {
	code = NormalizeCode(code)
	if !ValidCode(code) {
		return nil, ErrRoomNotFound
	}

	data, err := r.store.Get(ctx, RoomPath(code))
	if err != nil {
		return nil, r.wrap("get", err)
	}

	room, err := decodeRoom(data)
	if err != nil {
		return nil, &TransportError{Op: "get", Err: err}
	}

	return room, nil
}

// Join adds playerName to a room that has not started yet.
func (r *Repository) Join(ctx context.Context, code, playerName string) (*Player, error) {
	name, err := cleanName(playerName)
	if err != nil {
		return nil, err
	}

	var player *Player
	_, err = r.update(ctx, code, "join", func(room *Room) error {
		if room.Status != StatusWaiting {
			return ErrGameAlreadyStarted
		}
		if _, taken := room.PlayerByName(name); taken {
			return ErrNameTaken
		}

		player = &Player{
			ID:       uuid.NewString(),
			Name:     name,
			JoinedAt: r.timestamp(),
		}
		room.Players[player.ID] = player
		room.Placements[player.ID] = map[string]Point{}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return player, nil
}

// Start moves a waiting room into play. Starting a room that is already
// playing changes nothing.
func (r *Repository) Start(ctx context.Context, code string) (*Room, error) {
	return r.update(ctx, code, "start", r.start)
}

// StartAsHost starts the room only if hostName belongs to one of its hosts.
func (r *Repository) StartAsHost(ctx context.Context, code, hostName string) (*Room, error) {
	return r.update(ctx, code, "start", func(room *Room) error {
		host, ok := room.PlayerByName(hostName)
		if !ok || !host.IsHost {
			return ErrForbidden
		}
		return r.start(room)
	})
}

func (r *Repository) start(room *Room) error {
	switch room.Status {
	case StatusPlaying:
		return nil
	case StatusCompleted:
		return ErrGameAlreadyStarted
	}

	now := r.timestamp()
	room.Status = StatusPlaying
	room.StartedAt = &now

	return nil
}

// SubmitPlacements records every placement made by the player identified by
// playerRef (id or name). Subjects may likewise be ids or names. The
// submission that brings the count of submitted players up to the number of
// players completes the room, inside the same atomic write.
func (r *Repository) SubmitPlacements(ctx context.Context, code, playerRef string, placements map[string]Point) (*Room, error) {
	return r.update(ctx, code, "submit", func(room *Room) error {
		if room.Status != StatusPlaying {
			return ErrGameNotInProgress
		}

		rater, ok := room.FindPlayer(playerRef)
		if !ok {
			return ErrPlayerNotFound
		}
		if rater.Submitted {
			return ErrAlreadySubmitted
		}

		row := make(map[string]Point, len(placements))
		for ref, p := range placements {
			subject, ok := room.FindPlayer(ref)
			if !ok || !p.Valid() {
				return ErrInvalidPlacement
			}
			row[subject.ID] = p
		}

		room.Placements[rater.ID] = row
		rater.Submitted = true
		room.SubmittedCount++

		if room.SubmittedCount >= len(room.Players) {
			now := r.timestamp()
			room.Status = StatusCompleted
			room.CompletedAt = &now
		}

		return nil
	})
}

// Results holds the outcome of a completed room.
type Results struct {
	RoomCode   string         `json:"roomCode"`
	Axes       AxisPair       `json:"axes"`
	Scores     map[string]int `json:"scores"`
	Standings  []Standing     `json:"standings"`
	Players    []*Player      `json:"players"`
	Placements Matrix         `json:"placements"`
}

// Results scores a completed room.
func (r *Repository) Results(ctx context.Context, code string) (*Results, error) {
	room, err := r.Room(ctx, code)
	if err != nil {
		return nil, err
	}

	if room.Status != StatusCompleted {
		return nil, ErrGameNotCompleted
	}

	return ResultsFor(room), nil
}

// ResultsFor scores room as it stands.
func ResultsFor(room *Room) *Results {
	scores := Score(room.Placements)
	for id := range room.Players {
		if _, ok := scores[id]; !ok {
			scores[id] = 0
		}
	}

	names := lo.MapValues(room.Players, func(p *Player, _ string) string {
		return p.Name
	})

	return &Results{
		RoomCode:   room.Code,
		Axes:       room.Settings.Axes,
		Scores:     scores,
		Standings:  Rank(scores, names),
		Players:    room.OrderedPlayers(),
		Placements: room.Placements.Clone(),
	}
}

// RoomUpdate is one event on a room subscription.
type RoomUpdate struct {
	Exists bool
	Room   *Room
	Err    error
}

// Subscribe streams the room's state: the current snapshot first, then one
// per change. Calling the returned function, or cancelling ctx, ends the
// stream and closes the channel.
func (r *Repository) Subscribe(ctx context.Context, code string) (<-chan RoomUpdate, func()) {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan RoomUpdate, 1)

	snaps, err := r.store.Watch(ctx, RoomPath(NormalizeCode(code)))
	if err != nil {
		out <- RoomUpdate{Err: &TransportError{Op: "subscribe", Err: err}}
		close(out)
		return out, cancel
	}

	go func() {
		defer close(out)

		for snap := range snaps {
			var update RoomUpdate
			switch {
			case snap.Err != nil:
				update.Err = &TransportError{Op: "subscribe", Err: snap.Err}
			case snap.Exists:
				room, err := decodeRoom(snap.Data)
				if err != nil {
					update.Err = &TransportError{Op: "subscribe", Err: err}
					break
				}
				update.Exists = true
				update.Room = room
			}

			select {
			case out <- update:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, cancel
}

func (r *Repository) update(ctx context.Context, code, op string, fn func(*Room) error) (*Room, error) {
	code = NormalizeCode(code)
	if !ValidCode(code) {
		return nil, ErrRoomNotFound
	}

	var out *Room
	err := r.store.Update(ctx, RoomPath(code), func(current []byte) ([]byte, error) {
		room, err := decodeRoom(current)
		if err != nil {
			return nil, err
		}
		if err := fn(room); err != nil {
			return nil, err
		}
		out = room
		return encodeRoom(room)
	})
	if err != nil {
		return nil, r.wrap(op, err)
	}

	return out, nil
}

func (r *Repository) wrap(op string, err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrRoomNotFound
	}
	if lo.ContainsBy(domainErrors, func(target error) bool {
		return errors.Is(err, target)
	}) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}
