/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package plottwist implements the Plot Twist party game: players share a
// room, place pins for everyone (themselves included) on a grid with two
// labelled axes, and are scored on how well the others predicted them.
package plottwist

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/text/cases"
)

// Status is the lifecycle stage of a room.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusPlaying   Status = "playing"
	StatusCompleted Status = "completed"
)

const maxNameLength = 20

// Point is a position in the unit square.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Valid reports whether p lies inside [0,1]x[0,1].
func (p Point) Valid() bool {
	return p.X >= 0 && p.X <= 1 && p.Y >= 0 && p.Y <= 1
}

// Matrix holds placements keyed by rater id, then subject id.
type Matrix map[string]map[string]Point

// Lookup returns where rater placed subject.
func (m Matrix) Lookup(rater, subject string) (Point, bool) {
	row, ok := m[rater]
	if !ok {
		return Point{}, false
	}
	p, ok := row[subject]
	return p, ok
}

// Clone returns a deep copy of m.
func (m Matrix) Clone() Matrix {
	out := make(Matrix, len(m))
	for rater, row := range m {
		cp := make(map[string]Point, len(row))
		for subject, p := range row {
			cp[subject] = p
		}
		out[rater] = cp
	}
	return out
}

// Settings holds per-room game options.
type Settings struct {
	Axes AxisPair `json:"axes"`
}

// Player is a participant in a room. Name is for display only; ID is the
// identity used everywhere else.
type Player struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsHost    bool      `json:"isHost"`
	JoinedAt  time.Time `json:"joinedAt"`
	Submitted bool      `json:"submitted"`
}

// Room is the document stored at rooms/{code}.
type Room struct {
	Code           string             `json:"roomCode"`
	CreatedAt      time.Time          `json:"createdAt"`
	StartedAt      *time.Time         `json:"startedAt,omitempty"`
	CompletedAt    *time.Time         `json:"completedAt,omitempty"`
	HostID         string             `json:"hostId"`
	HostName       string             `json:"hostName"`
	Status         Status             `json:"status"`
	Settings       Settings           `json:"settings"`
	Players        map[string]*Player `json:"players"`
	Placements     Matrix             `json:"placements"`
	SubmittedCount int                `json:"submittedCount"`
}

// RoomPath returns the document store path of the room with the given code.
func RoomPath(code string) string {
	return "rooms/" + code
}

func decodeRoom(data []byte) (*Room, error) {
	var room Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, err
	}
	if room.Players == nil {
		room.Players = make(map[string]*Player)
	}
	if room.Placements == nil {
		room.Placements = make(Matrix)
	}
	return &room, nil
}

func encodeRoom(room *Room) ([]byte, error) {
	return json.Marshal(room)
}

// PlayerByName finds a player by display name, ignoring case.
func (r *Room) PlayerByName(name string) (*Player, bool) {
	key := foldName(name)
	if key == "" {
		return nil, false
	}
	for _, p := range r.Players {
		if foldName(p.Name) == key {
			return p, true
		}
	}
	return nil, false
}

// FindPlayer resolves ref as a player id first and a display name second.
func (r *Room) FindPlayer(ref string) (*Player, bool) {
	if p, ok := r.Players[ref]; ok {
		return p, true
	}
	return r.PlayerByName(ref)
}

// OrderedPlayers returns the players in join order.
func (r *Room) OrderedPlayers() []*Player {
	players := lo.Values(r.Players)
	sort.Slice(players, func(i, j int) bool {
		if players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].ID < players[j].ID
		}
		return players[i].JoinedAt.Before(players[j].JoinedAt)
	})
	return players
}

// AllSubmitted reports whether every player has submitted placements.
func (r *Room) AllSubmitted() bool {
	if len(r.Players) == 0 {
		return false
	}
	return lo.EveryBy(lo.Values(r.Players), func(p *Player) bool {
		return p.Submitted
	})
}

// foldName is the single normalisation used for every name comparison.
// A Caser is stateful, so each call gets its own.
func foldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

func cleanName(name string) (string, error) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" || len([]rune(name)) > maxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}

// NormalizeCode upper-cases and trims a user-supplied room code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
