// internal/game/game.go
package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/memorygame/internal/cache"
	"github.com/jason-s-yu/memorygame/internal/models"
	log "github.com/sirupsen/logrus"
)

// Phase is the turn state of a session.
type Phase string

const (
	PhaseIdle       Phase = "idle"        // no card face up in the current turn
	PhaseOneFlipped Phase = "one_flipped" // first card of the turn is up
	PhaseResolving  Phase = "resolving"   // two cards up, inputs locked until the reveal pause ends
	PhaseWon        Phase = "won"         // every card matched; only Reset leaves this phase
)

// Rejected flips leave the session untouched and return one of these.
var (
	ErrUnknownCard   = errors.New("unknown card")
	ErrCardFaceUp    = errors.New("card is already face up")
	ErrCardDisabled  = errors.New("card is disabled")
	ErrInputLocked   = errors.New("inputs are locked while the turn resolves")
	ErrGameOver      = errors.New("game is already won")
	ErrUnknownAction = errors.New("unknown action")
)

// ResultRecorder persists a finished game.
type ResultRecorder interface {
	SaveResult(ctx context.Context, result models.GameResult) error
}

// Notifier announces that a new result exists. It carries no payload.
type Notifier interface {
	NotifyGameCompleted(ctx context.Context) error
}

// ActionPublisher ships action records to the historian.
type ActionPublisher interface {
	PublishGameAction(ctx context.Context, record cache.GameActionRecord) error
}

// DefaultPersistTimeout bounds the result write and the notification that follows it.
const DefaultPersistTimeout = 5 * time.Second

type tileState struct {
	faceUp   bool
	disabled bool
	matched  bool // visual mark, set once the reveal pause of a matching turn ends
}

// MemoryGame holds the entire state of one player's board in memory.
// Every trigger (flip, tick, delayed callback) is serialized through Mu.
type MemoryGame struct {
	ID       uuid.UUID
	PlayerID uuid.UUID
	Pacing   Pacing

	Deck      []models.Card
	phase     Phase
	selection []models.Card
	matched   map[int]bool
	tiles     map[int]*tileState

	moves        int
	seconds      int
	inputsLocked bool
	timerStarted bool

	// generation increments on Reset; callbacks scheduled in an older generation are dropped
	generation int
	// timerRun increments on every clock start; ticks from an earlier run are dropped
	timerRun int
	pending    map[int]func() bool
	pendingSeq int

	timer     *GameTimer
	scheduler Scheduler

	actionIndex    int
	persistTimeout time.Duration
	lastActive     time.Time
	pendingSaves   sync.WaitGroup

	Mu sync.Mutex

	// Results receives the game record on a win. If nil, the win is not persisted.
	Results ResultRecorder

	// Notifier is told a new result exists after the save attempt.
	Notifier Notifier

	// ActionLog receives every accepted action for the historian. Optional.
	ActionLog ActionPublisher

	// BroadcastFn is called with the lock held. It must not call back into the game.
	BroadcastFn func(ev GameEvent)

	// OnPersistError observes failed result writes. Called from the save goroutine.
	OnPersistError func(err error)
}

// NewMemoryGame builds a session for playerID with a freshly shuffled deck and real clocks.
func NewMemoryGame(playerID uuid.UUID) *MemoryGame {
	return newMemoryGame(playerID, NewRealScheduler(), NewRealTicker)
}

func newMemoryGame(playerID uuid.UUID, scheduler Scheduler, tickers TickerFactory) *MemoryGame {
	id, _ := uuid.NewRandom()
	g := &MemoryGame{
		ID:             id,
		PlayerID:       playerID,
		Pacing:         DefaultPacing(),
		Deck:           Shuffle(NewDeck()),
		phase:          PhaseIdle,
		matched:        make(map[int]bool),
		tiles:          make(map[int]*tileState),
		pending:        make(map[int]func() bool),
		timer:          NewGameTimer(tickers),
		scheduler:      scheduler,
		persistTimeout: DefaultPersistTimeout,
		lastActive:     time.Now(),
	}
	for _, c := range g.Deck {
		g.tiles[c.ID] = &tileState{}
	}
	return g
}

func (g *MemoryGame) logger() *log.Entry {
	return log.WithFields(log.Fields{"game_id": g.ID, "player_id": g.PlayerID})
}

// HandlePlayerAction routes a decoded client action.
func (g *MemoryGame) HandlePlayerAction(action models.GameAction) error {
	switch action.ActionType {
	case models.ActionFlip:
		return g.flipReported(action.CardID, action.Kind)
	case models.ActionReset:
		g.Reset()
		return nil
	default:
		return ErrUnknownAction
	}
}

// flipReported flips by id. The kind reported by the client is informational only;
// matching always uses the server's deck.
func (g *MemoryGame) flipReported(cardID int, reported models.Kind) error {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	if reported != "" {
		if c, ok := g.cardByID(cardID); ok && c.Kind != reported {
			g.logger().Warnf("Client reported kind %q for card %d, deck says %q.", reported, cardID, c.Kind)
		}
	}
	return g.flipLocked(cardID)
}

// Flip turns a face-down card up. The first accepted flip of a game starts the clock;
// the second flip of a turn counts one move and resolves the pair.
func (g *MemoryGame) Flip(cardID int) error {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	return g.flipLocked(cardID)
}

// flipLocked assumes the lock is held.
func (g *MemoryGame) flipLocked(cardID int) error {
	g.lastActive = time.Now()
	if g.phase == PhaseWon {
		return ErrGameOver
	}
	if g.inputsLocked || g.phase == PhaseResolving {
		return ErrInputLocked
	}
	card, ok := g.cardByID(cardID)
	if !ok {
		return ErrUnknownCard
	}
	tile := g.tiles[cardID]
	if tile.faceUp {
		return ErrCardFaceUp
	}
	if tile.disabled || g.matched[cardID] {
		return ErrCardDisabled
	}

	if !g.timerStarted {
		g.timerStarted = true
		g.startTimerLocked()
	}

	tile.faceUp = true
	g.selection = append(g.selection, card)
	g.logAction(models.ActionFlip, map[string]interface{}{"cardId": card.ID, "kind": card.Kind})

	if len(g.selection) == 1 {
		g.phase = PhaseOneFlipped
		g.fireEvent(GameEvent{Type: EventCardFlipped, Card: buildEventCard(card)})
		return nil
	}

	// second card: lock the board and count the turn
	g.phase = PhaseResolving
	g.inputsLocked = true
	for _, t := range g.tiles {
		t.disabled = true
	}
	g.moves++
	g.fireEvent(GameEvent{Type: EventCardFlipped, Card: buildEventCard(card)})

	first, second := g.selection[0], g.selection[1]
	if first.Kind == second.Kind {
		g.resolveMatch(first, second)
	} else {
		g.resolveMismatch(first, second)
	}
	return nil
}

// resolveMatch records the pair and schedules the reveal. Assumes lock is held.
func (g *MemoryGame) resolveMatch(first, second models.Card) {
	g.matched[first.ID] = true
	g.matched[second.ID] = true
	g.logAction("turn_matched", map[string]interface{}{"card1": first.ID, "card2": second.ID, "moves": g.moves})
	g.fireEvent(GameEvent{
		Type:  EventTurnMatched,
		Card1: buildEventCard(first),
		Card2: buildEventCard(second),
	})

	if len(g.matched) == len(g.Deck) {
		g.phase = PhaseWon
		g.stopTimerLocked()
		g.logger().Infof("Game won in %d moves, %s.", g.moves, FormatElapsed(g.seconds))
		g.logAction("game_won", map[string]interface{}{"moves": g.moves, "seconds": g.seconds})
		g.persistResult()
		g.schedule(g.Pacing.WinDelay, g.surfaceWin)
	}

	g.schedule(g.Pacing.RevealDelay, func() {
		g.tiles[first.ID].matched = true
		g.tiles[second.ID].matched = true
		g.endTurn()
	})
}

// resolveMismatch schedules both cards to turn back down. Assumes lock is held.
func (g *MemoryGame) resolveMismatch(first, second models.Card) {
	g.logAction("turn_mismatched", map[string]interface{}{"card1": first.ID, "card2": second.ID, "moves": g.moves})
	g.fireEvent(GameEvent{
		Type:  EventTurnMismatched,
		Card1: buildEventCard(first),
		Card2: buildEventCard(second),
	})

	g.schedule(g.Pacing.RevealDelay, func() {
		g.tiles[first.ID].faceUp = false
		g.tiles[second.ID].faceUp = false
		g.endTurn()
	})
}

// endTurn re-enables every unmatched tile and clears the selection. A won board stays locked.
// Assumes lock is held.
func (g *MemoryGame) endTurn() {
	for id, t := range g.tiles {
		if !g.matched[id] {
			t.disabled = false
		}
	}
	g.selection = nil
	if g.phase != PhaseWon {
		g.phase = PhaseIdle
		g.inputsLocked = false
	}
	g.fireEvent(GameEvent{Type: EventTurnResolved})
}

// surfaceWin fires the win event carrying what the win dialog shows. Assumes lock is held.
func (g *MemoryGame) surfaceWin() {
	if g.phase != PhaseWon {
		return
	}
	g.fireEvent(GameEvent{
		Type: EventGameWon,
		Payload: map[string]interface{}{
			"moves": g.moves,
			"timer": FormatElapsed(g.seconds),
		},
	})
}

// persistResult saves the win in the background and then notifies listeners.
// Failures are logged and reported, never surfaced to the player. Assumes lock is held.
func (g *MemoryGame) persistResult() {
	id, _ := uuid.NewRandom()
	result := models.GameResult{
		ID:          id,
		PlayerID:    g.PlayerID,
		Seconds:     g.seconds,
		Moves:       g.moves,
		CompletedOn: time.Now().UTC(),
	}
	recorder, notifier, onErr := g.Results, g.Notifier, g.OnPersistError
	logger := g.logger()
	timeout := g.persistTimeout

	g.pendingSaves.Add(1)
	go func() {
		defer g.pendingSaves.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if recorder == nil {
			logger.Warn("No result recorder configured; win not persisted.")
		} else if err := recorder.SaveResult(ctx, result); err != nil {
			logger.WithError(err).Error("Failed to save game result.")
			if onErr != nil {
				onErr(err)
			}
		}

		if notifier == nil {
			return
		}
		if err := notifier.NotifyGameCompleted(ctx); err != nil {
			logger.WithError(err).Warn("Failed to publish game completed notification.")
		}
	}()
}

// Reset starts a new game on the same session. It doubles as the win acknowledgement.
func (g *MemoryGame) Reset() {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	g.lastActive = time.Now()
	g.generation++
	for seq, cancel := range g.pending {
		cancel()
		delete(g.pending, seq)
	}
	g.stopTimerLocked()

	g.moves = 0
	g.seconds = 0
	g.timerStarted = false
	g.selection = nil
	g.matched = make(map[int]bool)
	for _, t := range g.tiles {
		*t = tileState{}
	}
	g.inputsLocked = false
	g.phase = PhaseIdle
	Shuffle(g.Deck)

	g.logAction(models.ActionReset, nil)
	g.fireEvent(GameEvent{Type: EventGameReset})
}

// Tick advances the clock by one second while it runs; otherwise it does nothing.
func (g *MemoryGame) Tick() {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	g.tickLocked()
}

// tickFrom is the timer callback; ticks from a previous generation or clock run are dropped.
func (g *MemoryGame) tickFrom(generation, run int) {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	if generation != g.generation || run != g.timerRun {
		return
	}
	g.tickLocked()
}

// tickLocked assumes the lock is held.
func (g *MemoryGame) tickLocked() {
	if !g.timer.Running() {
		return
	}
	g.seconds++
	g.fireEventWithoutState(GameEvent{
		Type: EventTimerTick,
		Payload: map[string]interface{}{
			"seconds": g.seconds,
			"timer":   FormatElapsed(g.seconds),
		},
	})
}

// StartTimer starts the clock if it is not already running.
func (g *MemoryGame) StartTimer() bool {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	return g.startTimerLocked()
}

// StopTimer stops the clock. Stopping a stopped clock is a no-op.
func (g *MemoryGame) StopTimer() bool {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	return g.stopTimerLocked()
}

func (g *MemoryGame) startTimerLocked() bool {
	gen, run := g.generation, g.timerRun+1
	if !g.timer.Start(g.Pacing.TickInterval, func() { g.tickFrom(gen, run) }) {
		return false
	}
	g.timerRun = run
	return true
}

func (g *MemoryGame) stopTimerLocked() bool {
	return g.timer.Stop()
}

// Close releases the clock and pending callbacks. The session must not be used afterwards.
func (g *MemoryGame) Close() {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	g.generation++
	for seq, cancel := range g.pending {
		cancel()
		delete(g.pending, seq)
	}
	g.stopTimerLocked()
}

// LastActive is the time of the last flip, reset or state sync.
func (g *MemoryGame) LastActive() time.Time {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	return g.lastActive
}

// Phase returns the current turn state.
func (g *MemoryGame) Phase() Phase {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	return g.phase
}

// schedule runs f after d under the lock, unless the game was reset in the meantime.
// Assumes lock is held.
func (g *MemoryGame) schedule(d time.Duration, f func()) {
	gen := g.generation
	g.pendingSeq++
	seq := g.pendingSeq
	g.pending[seq] = g.scheduler.AfterFunc(d, func() {
		g.Mu.Lock()
		defer g.Mu.Unlock()
		delete(g.pending, seq)
		if gen != g.generation {
			g.logger().Debug("Dropping delayed callback from a previous game.")
			return
		}
		f()
	})
}

// cardByID finds a card in the deck. Assumes lock is held.
func (g *MemoryGame) cardByID(id int) (models.Card, bool) {
	for _, c := range g.Deck {
		if c.ID == id {
			return c, true
		}
	}
	return models.Card{}, false
}

// fireEvent attaches the current snapshot and broadcasts. Assumes lock is held.
func (g *MemoryGame) fireEvent(ev GameEvent) {
	snap := g.snapshotLocked()
	ev.State = &snap
	g.fireEventWithoutState(ev)
}

func (g *MemoryGame) fireEventWithoutState(ev GameEvent) {
	if g.BroadcastFn == nil {
		return
	}
	g.BroadcastFn(ev)
}

// logAction sends the action to the historian queue asynchronously. Assumes lock is held.
func (g *MemoryGame) logAction(actionType string, payload map[string]interface{}) {
	if g.ActionLog == nil {
		return
	}
	g.actionIndex++
	if payload == nil {
		payload = make(map[string]interface{})
	}
	record := cache.GameActionRecord{
		GameID:        g.ID,
		ActionIndex:   g.actionIndex,
		ActorUserID:   g.PlayerID,
		ActionType:    actionType,
		ActionPayload: payload,
		Timestamp:     time.Now().UnixMilli(),
	}
	publisher := g.ActionLog
	logger := g.logger()
	go func(rec cache.GameActionRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := publisher.PublishGameAction(ctx, rec); err != nil {
			logger.WithError(err).Warnf("Error publishing game action %d.", rec.ActionIndex)
		}
	}(record)
}
