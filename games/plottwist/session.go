/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package plottwist

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Stage is the section of the game a session is showing.
type Stage int

const (
	StageSetup Stage = iota
	StagePlaying
	StageResults
)

func (s Stage) String() string {
	switch s {
	case StageSetup:
		return "setup"
	case StagePlaying:
		return "playing"
	case StageResults:
		return "results"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StageFor maps a room status onto the stage a client should show.
func StageFor(status Status) Stage {
	switch status {
	case StatusPlaying:
		return StagePlaying
	case StatusCompleted:
		return StageResults
	}
	return StageSetup
}

const (
	FilterAll   = "all"
	baseZIndex  = 100
	noTurnIndex = -1
)

// SessionPlayer is a player as a session knows them.
type SessionPlayer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Session is the state behind one client's view of a game, either a local
// pass-and-play game or a mirror of a shared room. It only changes through
// its methods. A Session is not safe for concurrent use.
type Session struct {
	stage         Stage
	players       []SessionPlayer
	currentTurn   int
	placements    Matrix
	filter        string
	nextZIndex    int
	allPinsPlaced bool
	nameInput     string
	axes          AxisPair

	catalog []Axis
	rng     *rand.Rand
}

// NewSession returns a session in setup with axes drawn from catalog.
func NewSession(catalog []Axis, rng *rand.Rand) *Session {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	s := &Session{
		catalog: catalog,
		rng:     rng,
	}
	s.ResetGame()
	return s
}

func (s *Session) Stage() Stage {
	return s.stage
}

func (s *Session) Players() []SessionPlayer {
	return append([]SessionPlayer(nil), s.players...)
}

func (s *Session) Axes() AxisPair {
	return s.axes
}

func (s *Session) Filter() string {
	return s.filter
}

func (s *Session) NameInput() string {
	return s.nameInput
}

func (s *Session) AllPinsPlaced() bool {
	return s.allPinsPlaced
}

// CurrentTurn returns the index of the player whose turn it is.
func (s *Session) CurrentTurn() int {
	return s.currentTurn
}

// CurrentPlayer returns the player whose turn it is, if the game is running.
func (s *Session) CurrentPlayer() (SessionPlayer, bool) {
	if s.stage != StagePlaying || s.currentTurn < 0 || s.currentTurn >= len(s.players) {
		return SessionPlayer{}, false
	}
	return s.players[s.currentTurn], true
}

// SetNameInput stores the text typed into the name box.
func (s *Session) SetNameInput(text string) {
	s.nameInput = text
}

// AddPlayer adds a player during setup and clears the name box.
func (s *Session) AddPlayer(name string) (SessionPlayer, error) {
	if s.stage != StageSetup {
		return SessionPlayer{}, ErrNotInSetup
	}

	name, err := cleanName(name)
	if err != nil {
		return SessionPlayer{}, err
	}

	key := foldName(name)
	if lo.ContainsBy(s.players, func(p SessionPlayer) bool {
		return foldName(p.Name) == key
	}) {
		return SessionPlayer{}, ErrNameTaken
	}

	player := SessionPlayer{ID: uuid.NewString(), Name: name}
	s.players = append(s.players, player)
	s.nameInput = ""

	return player, nil
}

// RemovePlayer drops the player at index during setup. Out of range indexes
// are ignored.
func (s *Session) RemovePlayer(index int) error {
	if s.stage != StageSetup {
		return ErrNotInSetup
	}
	if index < 0 || index >= len(s.players) {
		return nil
	}
	s.players = append(s.players[:index:index], s.players[index+1:]...)
	return nil
}

// ClearPlayers removes every player during setup.
func (s *Session) ClearPlayers() error {
	if s.stage != StageSetup {
		return ErrNotInSetup
	}
	s.players = nil
	return nil
}

// StartGame leaves setup with fresh placements and axes.
func (s *Session) StartGame() error {
	if s.stage != StageSetup {
		return ErrNotInSetup
	}
	if len(s.players) == 0 {
		return ErrNoPlayers
	}

	s.placements = make(Matrix, len(s.players))
	for _, p := range s.players {
		s.placements[p.ID] = map[string]Point{}
	}
	s.currentTurn = 0
	s.nextZIndex = baseZIndex
	s.allPinsPlaced = false
	s.axes = SelectAxes(s.catalog, s.rng)
	s.stage = StagePlaying

	return nil
}

// PlacePin records where the current player puts subjectID and returns the
// z-index the pin should be drawn at, so the latest pin is on top.
func (s *Session) PlacePin(subjectID string, p Point) (int, error) {
	rater, ok := s.CurrentPlayer()
	if !ok {
		return 0, ErrGameNotInProgress
	}
	if !p.Valid() || !s.hasPlayer(subjectID) {
		return 0, ErrInvalidPlacement
	}

	row, ok := s.placements[rater.ID]
	if !ok {
		row = map[string]Point{}
		s.placements[rater.ID] = row
	}
	row[subjectID] = p

	z := s.nextZIndex
	s.nextZIndex++
	s.allPinsPlaced = s.placedAll(rater.ID)

	return z, nil
}

// EndTurn hands over to the next player, or shows the results after the
// last one.
func (s *Session) EndTurn() error {
	if _, ok := s.CurrentPlayer(); !ok {
		return ErrGameNotInProgress
	}
	if !s.allPinsPlaced {
		return ErrPinsRemaining
	}

	s.currentTurn++
	s.nextZIndex = baseZIndex
	s.allPinsPlaced = false

	if s.currentTurn >= len(s.players) {
		s.currentTurn = noTurnIndex
		s.stage = StageResults
	}

	return nil
}

// SetFilter chooses whose placements the results show: FilterAll or a
// player id. Unknown ids fall back to FilterAll.
func (s *Session) SetFilter(filter string) {
	if filter != FilterAll && !s.hasPlayer(filter) {
		filter = FilterAll
	}
	s.filter = filter
}

// ResetGame returns to setup and forgets every player and placement.
func (s *Session) ResetGame() {
	s.stage = StageSetup
	s.players = nil
	s.currentTurn = 0
	s.placements = Matrix{}
	s.filter = FilterAll
	s.nextZIndex = baseZIndex
	s.allPinsPlaced = false
	s.nameInput = ""
	s.axes = SelectAxes(s.catalog, s.rng)
}

// ApplyRoom mirrors a shared room into the session. viewerID, if set, is
// the player looking at it; their pins decide AllPinsPlaced.
func (s *Session) ApplyRoom(room *Room, viewerID string) {
	s.stage = StageFor(room.Status)
	s.players = lo.Map(room.OrderedPlayers(), func(p *Player, _ int) SessionPlayer {
		return SessionPlayer{ID: p.ID, Name: p.Name}
	})
	s.axes = room.Settings.Axes
	s.placements = room.Placements.Clone()
	s.currentTurn = noTurnIndex

	s.allPinsPlaced = false
	if viewerID != "" {
		if viewer, ok := room.FindPlayer(viewerID); ok {
			s.allPinsPlaced = viewer.Submitted || s.placedAll(viewer.ID)
		}
	}

	if s.filter != FilterAll && !s.hasPlayer(s.filter) {
		s.filter = FilterAll
	}
}

// Scores scores the placements the session holds.
func (s *Session) Scores() map[string]int {
	return Score(s.placements)
}

// Placements returns a copy of the placements the session holds.
func (s *Session) Placements() Matrix {
	return s.placements.Clone()
}

// SessionView is a read-only rendering of a session.
type SessionView struct {
	Stage         Stage           `json:"stage"`
	Players       []SessionPlayer `json:"players"`
	CurrentTurn   int             `json:"currentTurn"`
	Axes          AxisPair        `json:"axes"`
	Filter        string          `json:"filter"`
	NextZIndex    int             `json:"nextZIndex"`
	AllPinsPlaced bool            `json:"allPinsPlaced"`
	Standings     []Standing      `json:"standings,omitempty"`
}

// View renders the session. Standings are only filled in on the results stage.
func (s *Session) View() SessionView {
	view := SessionView{
		Stage:         s.stage,
		Players:       s.Players(),
		CurrentTurn:   s.currentTurn,
		Axes:          s.axes,
		Filter:        s.filter,
		NextZIndex:    s.nextZIndex,
		AllPinsPlaced: s.allPinsPlaced,
	}

	if s.stage == StageResults {
		names := make(map[string]string, len(s.players))
		for _, p := range s.players {
			names[p.ID] = p.Name
		}
		view.Standings = Rank(s.Scores(), names)
	}

	return view
}

func (s *Session) hasPlayer(id string) bool {
	return lo.ContainsBy(s.players, func(p SessionPlayer) bool {
		return p.ID == id
	})
}

func (s *Session) placedAll(raterID string) bool {
	row := s.placements[raterID]
	return len(s.players) > 0 && lo.EveryBy(s.players, func(p SessionPlayer) bool {
		_, ok := row[p.ID]
		return ok
	})
}
