// Package admission decides whether an incoming challenge is accepted.
// Decide is a pure function over the invitation, the configured policy and
// the flagged-peer daily count; every rejection names the rule it violated.
package admission

import (
	"strings"
	"time"
)

// Invitation is the admission-relevant subset of an incoming challenge.
type Invitation struct {
	Speed      string
	Variant    string
	Challenger string
	// FlaggedPeer marks the challenger as another automated player.
	FlaggedPeer bool
}

type Policy struct {
	Speeds   []string
	Variants []string
	// DailyFlaggedLimit caps sessions started against flagged peers per UTC
	// calendar day.
	DailyFlaggedLimit int
}

// FlaggedCounter reports how many flagged-peer sessions started on the UTC
// calendar day containing the given time.
type FlaggedCounter interface {
	FlaggedPeerCountOn(day time.Time) int
}

type Rule int

const (
	RuleNone Rule = iota
	RuleVariant
	RuleSpeed
	RuleFlaggedLimit
)

func (r Rule) String() string {
	switch r {
	case RuleVariant:
		return "variant"
	case RuleSpeed:
		return "speed"
	case RuleFlaggedLimit:
		return "flagged_peer_daily_limit"
	default:
		return "none"
	}
}

type Decision struct {
	Accept bool
	Rule   Rule
	Reason string
}

func accept() Decision { return Decision{Accept: true} }

func reject(rule Rule, reason string) Decision {
	return Decision{Rule: rule, Reason: reason}
}

// Decide evaluates the rules in order and rejects on the first violation.
// An empty speed or variant on the invitation passes its allow-set check.
func Decide(inv Invitation, pol Policy, counter FlaggedCounter, now time.Time) Decision {
	variant := strings.ToLower(strings.TrimSpace(inv.Variant))
	if variant != "" && !contains(pol.Variants, variant) {
		return reject(RuleVariant, "variant "+variant+" not allowed")
	}

	speed := strings.ToLower(strings.TrimSpace(inv.Speed))
	if speed != "" && !contains(pol.Speeds, speed) {
		return reject(RuleSpeed, "speed "+speed+" not allowed")
	}

	if inv.FlaggedPeer {
		if counter.FlaggedPeerCountOn(now) >= pol.DailyFlaggedLimit {
			return reject(RuleFlaggedLimit, "daily flagged-peer limit reached")
		}
	}

	return accept()
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
