// Package backoff provides the retry delay policy shared by the event
// dispatcher and the idle challenger: exponential growth from a base delay up
// to a cap, with a distinguished fixed cooldown for rate-limit responses.
package backoff

import "time"

type Policy struct {
	Base     time.Duration
	Cap      time.Duration
	Cooldown time.Duration

	current time.Duration
}

func New(base, cap time.Duration) *Policy {
	return &Policy{Base: base, Cap: cap}
}

// Next returns the delay to wait before the next attempt and doubles the
// internal delay for the attempt after that, saturating at Cap.
func (p *Policy) Next() time.Duration {
	if p.current <= 0 {
		p.current = p.Base
	}
	d := p.current
	if d > p.Cap {
		d = p.Cap
	}
	p.current = p.current * 2
	if p.current > p.Cap {
		p.current = p.Cap
	}
	return d
}

// Reset restores the delay to Base. Called after any successful iteration.
func (p *Policy) Reset() {
	p.current = 0
}

// CooldownDelay is the fixed wait applied on a rate-limit signal. It does not
// participate in the doubling sequence; callers Reset after the cooldown.
func (p *Policy) CooldownDelay() time.Duration {
	return p.Cooldown
}
