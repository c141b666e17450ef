// Package dispatcher owns the global event stream: it admits or declines
// incoming challenges and spawns one session actor per started game. The
// companion IdleChallenger keeps the bot busy when no sessions are live.
package dispatcher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/park285/lichess-cheese-bot/internal/admission"
	"github.com/park285/lichess-cheese-bot/internal/backoff"
	"github.com/park285/lichess-cheese-bot/internal/lichess"
)

// EventStream yields global events.
type EventStream interface {
	Next() (lichess.Event, error)
	Close() error
}

// EventClient is the slice of the API client the dispatcher needs.
type EventClient interface {
	StreamEvents(ctx context.Context) (EventStream, error)
	AcceptChallenge(ctx context.Context, challengeID string) error
	DeclineChallenge(ctx context.Context, challengeID string) error
}

// Runner is a spawned game session.
type Runner interface {
	Run(ctx context.Context)
}

// SessionFactory builds the actor for one game id.
type SessionFactory func(gameID string) Runner

// SessionRegistry suppresses duplicate spawns for the same game id.
type SessionRegistry interface {
	RegisterIfAbsent(id string, handle any) bool
}

type Deps struct {
	Client     EventClient
	Counter    admission.FlaggedCounter
	Registry   SessionRegistry
	NewSession SessionFactory
	Log        *zap.Logger
}

type Dispatcher struct {
	client     EventClient
	policy     admission.Policy
	counter    admission.FlaggedCounter
	registry   SessionRegistry
	newSession SessionFactory
	log        *zap.Logger
}

func New(policy admission.Policy, d Deps) *Dispatcher {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Dispatcher{
		client:     d.Client,
		policy:     policy,
		counter:    d.Counter,
		registry:   d.Registry,
		newSession: d.NewSession,
		log:        d.Log,
	}
}

// Run consumes the global event stream until ctx is cancelled, reconnecting
// with exponential backoff. A 429 waits out the fixed cooldown instead.
func (d *Dispatcher) Run(ctx context.Context) error {
	bo := backoff.New(5*time.Second, 60*time.Second)
	bo.Cooldown = 70 * time.Second

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		stream, err := d.client.StreamEvents(ctx)
		if err != nil {
			if !d.waitRetry(ctx, bo, err, "open event stream failed") {
				return ctx.Err()
			}
			continue
		}
		bo.Reset()
		d.log.Info("event stream connected")

		err = d.consume(ctx, stream)
		_ = stream.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.waitRetry(ctx, bo, err, "event stream broke") {
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) waitRetry(ctx context.Context, bo *backoff.Policy, err error, msg string) bool {
	var delay time.Duration
	if lichess.IsRateLimited(err) {
		delay = bo.CooldownDelay()
		bo.Reset()
		d.log.Warn("event stream rate limited", zap.Duration("cooldown", delay))
	} else {
		delay = bo.Next()
		d.log.Error(msg, zap.Error(err), zap.Duration("retry_in", delay))
	}
	return sleepCtx(ctx, delay)
}

func (d *Dispatcher) consume(ctx context.Context, stream EventStream) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, err := stream.Next()
		if err != nil {
			return err
		}
		switch ev.Type {
		case lichess.EventChallenge:
			d.handleChallenge(ctx, ev.Challenge)
		case lichess.EventGameStart:
			d.handleGameStart(ctx, ev.Game)
		case lichess.EventGameFinish:
			if ev.Game != nil {
				d.log.Info("game finished",
					zap.String("game_id", ev.Game.ID),
					zap.String("status", ev.Game.Status),
					zap.String("winner", ev.Game.Winner))
			}
		default:
			d.log.Debug("ignoring event", zap.String("type", ev.Type))
		}
	}
}

func (d *Dispatcher) handleChallenge(ctx context.Context, ch *lichess.Challenge) {
	if ch == nil {
		return
	}
	inv := admission.Invitation{Speed: ch.Speed, Variant: ch.Variant.Key}
	if ch.Challenger != nil {
		inv.Challenger = ch.Challenger.Name
		inv.FlaggedPeer = ch.Challenger.Title == "BOT"
	}
	if ch.IsBot {
		inv.FlaggedPeer = true
	}

	dec := admission.Decide(inv, d.policy, d.counter, time.Now().UTC())
	if dec.Accept {
		if err := d.client.AcceptChallenge(ctx, ch.ID); err != nil {
			d.log.Error("accept challenge failed", zap.String("challenge_id", ch.ID), zap.Error(err))
			return
		}
		d.log.Info("challenge accepted",
			zap.String("challenge_id", ch.ID),
			zap.String("challenger", inv.Challenger),
			zap.String("speed", ch.Speed),
			zap.String("variant", ch.Variant.Key))
		return
	}

	d.log.Info("challenge declined",
		zap.String("challenge_id", ch.ID),
		zap.String("challenger", inv.Challenger),
		zap.String("rule", dec.Rule.String()),
		zap.String("reason", dec.Reason))
	// Decline is best effort; the challenge expires on its own either way.
	if err := d.client.DeclineChallenge(ctx, ch.ID); err != nil {
		d.log.Warn("decline challenge failed", zap.String("challenge_id", ch.ID), zap.Error(err))
	}
}

func (d *Dispatcher) handleGameStart(ctx context.Context, game *lichess.GameRef) {
	if game == nil || game.ID == "" {
		return
	}
	runner := d.newSession(game.ID)
	if !d.registry.RegisterIfAbsent(game.ID, runner) {
		d.log.Warn("duplicate gameStart ignored", zap.String("game_id", game.ID))
		return
	}
	d.log.Info("session spawned", zap.String("game_id", game.ID))
	go runner.Run(ctx)
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
