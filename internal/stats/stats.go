// Package stats persists the ledger of completed game sessions. The ledger
// holds at most the 1000 most recent records and is rewritten to disk in full
// on every append; the append and the write happen under one lock so the
// daily-count query always sees a consistent file.
package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

const maxRecords = 1000

type MoveRecord struct {
	Ply  int       `json:"ply"`
	Move string    `json:"move"`
	Time time.Time `json:"time"`
}

type Record struct {
	GameID    string       `json:"game_id"`
	StartTime time.Time    `json:"start_time"`
	EndTime   time.Time    `json:"end_time"`
	Opponent  string       `json:"opponent"`
	Variant   string       `json:"variant"`
	Speed     string       `json:"speed"`
	IsBot     bool         `json:"is_bot"`
	Moves     []MoveRecord `json:"moves"`
}

type ledger struct {
	Sessions []Record `json:"sessions"`
}

type Store struct {
	mu       sync.Mutex
	path     string
	sessions []Record
}

// Open loads the ledger from path, or starts empty when the file is absent.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read stats file: %w", err)
	}
	var l ledger
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("parse stats file %s: %w", path, err)
	}
	s.sessions = l.Sessions
	return s, nil
}

// Append adds a finalized record, evicting the oldest entries beyond the cap,
// and rewrites the file before returning.
func (s *Store) Append(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = append(s.sessions, r)
	if len(s.sessions) > maxRecords {
		s.sessions = s.sessions[len(s.sessions)-maxRecords:]
	}
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	raw, err := json.MarshalIndent(ledger{Sessions: s.sessions}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("write stats file: %w", err)
	}
	return nil
}

// FlaggedPeerCountOn counts sessions against flagged (bot) peers whose start
// time falls on the same UTC calendar day as day.
func (s *Store) FlaggedPeerCountOn(day time.Time) int {
	y, m, d := day.UTC().Date()

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, r := range s.sessions {
		if !r.IsBot {
			continue
		}
		ry, rm, rd := r.StartTime.UTC().Date()
		if ry == y && rm == m && rd == d {
			count++
		}
	}
	return count
}

// Len returns the number of records currently held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Records returns a copy of the ledger in append order.
func (s *Store) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.sessions))
	copy(out, s.sessions)
	return out
}
