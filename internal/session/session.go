// Package session runs one actor per accepted game: it consumes the game's
// event stream, rebuilds the board from the authoritative move list on every
// update, plays the bot's moves through the decision engine, and records the
// finished game in the stats ledger.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	chesslib "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"github.com/park285/lichess-cheese-bot/internal/gamelog"
	"github.com/park285/lichess-cheese-bot/internal/lichess"
	"github.com/park285/lichess-cheese-bot/internal/stats"
)

// GameStream yields the per-game events.
type GameStream interface {
	Next() (lichess.GameEvent, error)
	Close() error
}

// GameClient is the slice of the API client a session needs.
type GameClient interface {
	StreamGame(ctx context.Context, gameID string) (GameStream, error)
	MakeMove(ctx context.Context, gameID, move string) error
	PostChat(ctx context.Context, gameID, text string) error
}

// MoveEngine picks one move for the current position at a depth budget.
type MoveEngine interface {
	BestMove(ctx context.Context, moves []string, depth int) (string, error)
	Close() error
}

// EngineFactory launches a dedicated engine process for one session.
type EngineFactory func(ctx context.Context) (MoveEngine, error)

type RecordSink interface {
	Append(stats.Record) error
}

type Deregistry interface {
	Deregister(id string)
}

type Params struct {
	GameID      string
	BotUsername string
	Depth       int
	GameLogDir  string
	// PollInterval bounds the poll rate between events. Defaults to 1s.
	PollInterval time.Duration
	// RateLimitWait is the pause after a mid-game 429. Defaults to 10s.
	RateLimitWait time.Duration
}

type Deps struct {
	Client    GameClient
	NewEngine EngineFactory
	Stats     RecordSink
	Registry  Deregistry
	Log       *zap.Logger
}

type Session struct {
	id       string
	username string
	depth    int
	logDir   string
	poll     time.Duration
	rlWait   time.Duration

	client    GameClient
	newEngine EngineFactory
	stats     RecordSink
	registry  Deregistry
	log       *zap.Logger

	eng       MoveEngine
	glog      *zap.Logger
	closeGlog func() error

	game        *chesslib.Game
	moves       []string
	lastSeen    int
	color       chesslib.Color
	colorKnown  bool
	whiteName   string
	blackName   string
	timeControl string
	wtime       int64
	btime       int64
	terminal    bool

	record stats.Record
}

func New(p Params, d Deps) *Session {
	if p.PollInterval == 0 {
		p.PollInterval = time.Second
	}
	if p.RateLimitWait == 0 {
		p.RateLimitWait = 10 * time.Second
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Session{
		id:        p.GameID,
		username:  p.BotUsername,
		depth:     p.Depth,
		logDir:    p.GameLogDir,
		poll:      p.PollInterval,
		rlWait:    p.RateLimitWait,
		client:    d.Client,
		newEngine: d.NewEngine,
		stats:     d.Stats,
		registry:  d.Registry,
		log:       d.Log,
		glog:      zap.NewNop(),
		game:      chesslib.NewGame(),
		wtime:     -1,
		btime:     -1,
		record: stats.Record{
			GameID:    p.GameID,
			StartTime: time.Now().UTC(),
		},
	}
}

// Run plays the game to completion. Cleanup (engine shutdown, record
// finalization, log close, deregistration) runs on every exit path.
func (s *Session) Run(ctx context.Context) {
	defer s.cleanup()

	s.log.Info("session starting", zap.String("game_id", s.id))

	eng, err := s.newEngine(ctx)
	if err != nil {
		s.log.Error("engine launch failed", zap.String("game_id", s.id), zap.Error(err))
		return
	}
	s.eng = eng

	if err := s.client.PostChat(ctx, s.id, fmt.Sprintf("Hello! I'm %s. Good luck and have fun.", s.username)); err != nil {
		s.log.Warn("welcome message failed", zap.String("game_id", s.id), zap.Error(err))
	}

	for {
		stream, err := s.client.StreamGame(ctx, s.id)
		if err != nil {
			if lichess.IsRateLimited(err) {
				s.log.Warn("game stream rate limited", zap.String("game_id", s.id))
				if !sleepCtx(ctx, s.rlWait) {
					return
				}
				continue
			}
			s.log.Error("open game stream failed", zap.String("game_id", s.id), zap.Error(err))
			return
		}

		err = s.consume(ctx, stream)
		_ = stream.Close()
		switch {
		case err == nil:
			return
		case errors.Is(err, io.EOF):
			s.log.Info("game stream ended", zap.String("game_id", s.id))
			return
		case lichess.IsRateLimited(err):
			s.log.Warn("game stream rate limited mid-game", zap.String("game_id", s.id))
			if !sleepCtx(ctx, s.rlWait) {
				return
			}
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return
		default:
			s.log.Error("game stream error", zap.String("game_id", s.id), zap.Error(err))
			return
		}
	}
}

func (s *Session) consume(ctx context.Context, stream GameStream) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, err := stream.Next()
		if err != nil {
			return err
		}
		s.trace(ev)

		switch ev.Type {
		case lichess.GameEventFull:
			s.handleFull(ev)
			if s.terminal {
				return nil
			}
			if ev.State != nil {
				if err := s.applyState(*ev.State); err != nil {
					return err
				}
			}
		case lichess.GameEventState:
			if err := s.applyState(ev.GameState); err != nil {
				return err
			}
		default:
			continue
		}

		if s.terminal {
			return nil
		}
		if s.myTurn() {
			s.compute(ctx)
		}
		if !sleepCtx(ctx, s.poll) {
			return ctx.Err()
		}
	}
}

// handleFull resolves the bot's color from the match metadata. A session
// whose identity matches neither player never plays a move.
func (s *Session) handleFull(ev lichess.GameEvent) {
	if ev.White != nil {
		s.whiteName = ev.White.Name
	}
	if ev.Black != nil {
		s.blackName = ev.Black.Name
	}

	var opponent *lichess.Player
	switch {
	case ev.White != nil && strings.EqualFold(ev.White.Name, s.username):
		s.color = chesslib.White
		s.colorKnown = true
		opponent = ev.Black
	case ev.Black != nil && strings.EqualFold(ev.Black.Name, s.username):
		s.color = chesslib.Black
		s.colorKnown = true
		opponent = ev.White
	default:
		s.log.Error("bot username not found among players",
			zap.String("game_id", s.id),
			zap.String("white", s.whiteName),
			zap.String("black", s.blackName))
		s.terminal = true
		return
	}

	if opponent != nil {
		s.record.Opponent = opponent.Name
		s.record.IsBot = opponent.Title == "BOT"
	}
	s.record.Variant = ev.Variant.Key
	s.record.Speed = ev.Speed
	s.timeControl = formatTimeControl(ev.Clock)

	// A stream reconnect replays gameFull; keep the handle from the first one.
	if s.closeGlog == nil {
		glog, closer, err := gamelog.Open(s.logDir, s.id, s.record.Opponent, s.record.StartTime)
		if err != nil {
			s.log.Warn("open game log failed", zap.String("game_id", s.id), zap.Error(err))
		} else {
			s.glog = glog
			s.closeGlog = closer
			s.glog.Info("game started",
				zap.String("white", s.whiteName),
				zap.String("black", s.blackName),
				zap.String("time_control", s.timeControl))
		}
	}
}

// applyState rebuilds the position from scratch off the authoritative move
// list, logs newly arrived plies, and checks both game-over signals.
func (s *Session) applyState(st lichess.GameState) error {
	list := strings.Fields(st.Moves)
	game, err := rebuild(list)
	if err != nil {
		s.log.Error("replay move list failed", zap.String("game_id", s.id), zap.Error(err))
		return err
	}
	s.game = game
	s.moves = list
	s.wtime = st.WTime
	s.btime = st.BTime

	for i := s.lastSeen; i < len(list); i++ {
		ply := i + 1
		moverColor, mover := "white", s.whiteName
		if i%2 == 1 {
			moverColor, mover = "black", s.blackName
		}
		tc := s.timeControl
		if tc == "" {
			tc = "unknown"
		}
		s.glog.Info("move",
			zap.Int("ply", ply),
			zap.String("color", moverColor),
			zap.String("player", mover),
			zap.String("time_control", tc),
			zap.String("move", list[i]))
		s.record.Moves = append(s.record.Moves, stats.MoveRecord{Ply: ply, Move: list[i], Time: time.Now().UTC()})
	}
	if len(list) > s.lastSeen {
		s.lastSeen = len(list)
	}

	if outcome := s.game.Outcome(); outcome != chesslib.NoOutcome {
		s.log.Info("game over detected locally",
			zap.String("game_id", s.id),
			zap.String("result", outcome.String()),
			zap.String("method", s.game.Method().String()))
		s.glog.Info("game over detected locally", zap.String("result", outcome.String()))
		s.terminal = true
		return nil
	}

	if st.Status != "" {
		if lichess.TerminalStatus(st.Status) {
			s.log.Info("game finished",
				zap.String("game_id", s.id),
				zap.String("status", st.Status),
				zap.String("winner", st.Winner))
			s.glog.Info("status update", zap.String("status", st.Status), zap.String("winner", st.Winner))
			s.terminal = true
		} else {
			s.log.Debug("status update", zap.String("game_id", s.id), zap.String("status", st.Status))
		}
	}
	return nil
}

func (s *Session) myTurn() bool {
	return s.colorKnown && !s.terminal && s.game.Position().Turn() == s.color
}

// compute asks the engine for a move at a clock-scaled depth, validates it,
// submits it and applies it locally until the next authoritative replay.
func (s *Session) compute(ctx context.Context) {
	depth := depthFor(s.remainingOwnClock(), s.depth)

	best, err := s.eng.BestMove(ctx, s.moves, depth)
	if err != nil {
		s.log.Error("engine search failed", zap.String("game_id", s.id), zap.Error(err))
		return
	}

	mv, err := chesslib.UCINotation{}.Decode(s.game.Position(), best)
	if err != nil {
		s.log.Warn("engine suggested illegal move",
			zap.String("game_id", s.id),
			zap.String("move", best))
		s.glog.Warn("illegal engine move", zap.String("move", best))
		return
	}

	if err := s.client.MakeMove(ctx, s.id, best); err != nil {
		s.log.Error("submit move failed", zap.String("game_id", s.id), zap.String("move", best), zap.Error(err))
		return
	}
	s.game.Move(mv, nil)
	s.moves = append(s.moves, best)
	s.lastSeen = len(s.moves)
	s.record.Moves = append(s.record.Moves, stats.MoveRecord{Ply: len(s.moves), Move: best, Time: time.Now().UTC()})

	s.log.Info("played move",
		zap.String("game_id", s.id),
		zap.Int("ply", len(s.moves)),
		zap.Int("depth", depth),
		zap.String("move", best))
	s.glog.Info("played", zap.Int("ply", len(s.moves)), zap.String("move", best))
}

func (s *Session) remainingOwnClock() int64 {
	if !s.colorKnown {
		return -1
	}
	if s.color == chesslib.White {
		return s.wtime
	}
	return s.btime
}

func (s *Session) cleanup() {
	if s.eng != nil {
		_ = s.eng.Close()
	}
	s.record.EndTime = time.Now().UTC()
	if err := s.stats.Append(s.record); err != nil {
		s.log.Error("append session record failed", zap.String("game_id", s.id), zap.Error(err))
	}
	if s.closeGlog != nil {
		_ = s.closeGlog()
	}
	s.registry.Deregister(s.id)
	s.log.Info("session exit", zap.String("game_id", s.id))
}

func (s *Session) trace(ev lichess.GameEvent) {
	s.glog.Info("event",
		zap.String("type", ev.Type),
		zap.String("moves", ev.Moves),
		zap.String("status", ev.Status),
		zap.String("winner", ev.Winner))
}

// rebuild replays a UCI move list from the start position.
func rebuild(moves []string) (*chesslib.Game, error) {
	game := chesslib.NewGame()
	for i, mv := range moves {
		if err := game.PushNotationMove(mv, chesslib.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay move %d (%s): %w", i+1, mv, err)
		}
	}
	return game, nil
}

// depthFor scales the configured search depth down as the bot's own clock
// runs low. A negative remaining value means the clock is unknown.
func depthFor(remainingMillis int64, configured int) int {
	switch {
	case remainingMillis < 0:
		return configured
	case remainingMillis < 10000:
		return min(5, configured)
	case remainingMillis < 30000:
		return min(8, configured)
	case remainingMillis < 60000:
		return min(12, configured)
	default:
		return configured
	}
}

func formatTimeControl(c *lichess.Clock) string {
	if c == nil {
		return ""
	}
	initial := c.Initial / 1000
	inc := c.Increment / 1000
	if initial%60 == 0 {
		return fmt.Sprintf("%dm+%ds", initial/60, inc)
	}
	return fmt.Sprintf("%ds+%ds", initial, inc)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
