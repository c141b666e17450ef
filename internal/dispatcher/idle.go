package dispatcher

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/park285/lichess-cheese-bot/internal/backoff"
	"github.com/park285/lichess-cheese-bot/internal/lichess"
)

// ChallengeClient issues outgoing invitations.
type ChallengeClient interface {
	CreateOpenChallenge(ctx context.Context, terms lichess.ChallengeTerms) error
	CreateChallenge(ctx context.Context, target string, terms lichess.ChallengeTerms) error
}

// LiveCounter reports how many sessions are currently live.
type LiveCounter interface {
	CountLive() int
}

// Outgoing invitations are always casual 5+5 standard.
var idleTerms = lichess.ChallengeTerms{
	Rated:          false,
	ClockLimit:     300,
	ClockIncrement: 5,
	Variant:        "standard",
}

type IdleParams struct {
	// Interval between idleness checks. Defaults to 60s.
	Interval time.Duration
	// SettleDelay is the pause after an idle tick before challenging, so a
	// gameStart racing the tick wins. Defaults to 2s.
	SettleDelay time.Duration
	// Candidates to challenge directly; empty means open challenges.
	Candidates []string
}

type IdleChallenger struct {
	client      ChallengeClient
	live        LiveCounter
	interval    time.Duration
	settleDelay time.Duration
	candidates  []string
	rng         *rand.Rand
	log         *zap.Logger
}

func NewIdleChallenger(p IdleParams, client ChallengeClient, live LiveCounter, log *zap.Logger) *IdleChallenger {
	if p.Interval == 0 {
		p.Interval = 60 * time.Second
	}
	if p.SettleDelay == 0 {
		p.SettleDelay = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &IdleChallenger{
		client:      client,
		live:        live,
		interval:    p.Interval,
		settleDelay: p.SettleDelay,
		candidates:  p.Candidates,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		log:         log,
	}
}

// Run ticks on the configured interval and issues an invitation whenever no
// session is live. Failed invitations back off from 5s up to 5m.
func (a *IdleChallenger) Run(ctx context.Context) {
	bo := backoff.New(5*time.Second, 5*time.Minute)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if a.live.CountLive() > 0 {
			continue
		}
		if !sleepCtx(ctx, a.settleDelay) {
			return
		}
		// Re-check: a game may have started during the settle delay.
		if a.live.CountLive() > 0 {
			continue
		}
		if err := a.issue(ctx); err != nil {
			delay := bo.Next()
			a.log.Warn("idle challenge failed", zap.Error(err), zap.Duration("retry_in", delay))
			if !sleepCtx(ctx, delay) {
				return
			}
			continue
		}
		bo.Reset()
	}
}

func (a *IdleChallenger) issue(ctx context.Context) error {
	if len(a.candidates) == 0 {
		a.log.Info("posting open challenge",
			zap.Int("clock_limit", idleTerms.ClockLimit),
			zap.Int("clock_increment", idleTerms.ClockIncrement))
		return a.client.CreateOpenChallenge(ctx, idleTerms)
	}

	order := a.rng.Perm(len(a.candidates))
	var lastErr error
	for _, i := range order {
		target := a.candidates[i]
		a.log.Info("challenging candidate", zap.String("target", target))
		if err := a.client.CreateChallenge(ctx, target, idleTerms); err != nil {
			a.log.Warn("candidate challenge failed", zap.String("target", target), zap.Error(err))
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}
