package stats

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "stats.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestAppendCapsAtThousandKeepingNewest(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 1050; i++ {
		if err := s.Append(Record{GameID: fmt.Sprintf("g%04d", i)}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	if got := s.Len(); got != 1000 {
		t.Fatalf("len: %d, want 1000", got)
	}
	recs := s.Records()
	if recs[0].GameID != "g0050" {
		t.Fatalf("oldest kept: %s, want g0050", recs[0].GameID)
	}
	if recs[len(recs)-1].GameID != "g1049" {
		t.Fatalf("newest kept: %s, want g1049", recs[len(recs)-1].GameID)
	}
}

func TestPersistRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	start := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := Record{
			GameID:    fmt.Sprintf("g%d", i),
			StartTime: start.Add(time.Duration(i) * time.Hour),
			EndTime:   start.Add(time.Duration(i)*time.Hour + 10*time.Minute),
			Opponent:  "rival",
			Variant:   "standard",
			Speed:     "blitz",
			Moves:     []MoveRecord{{Ply: 1, Move: "e2e4", Time: start}},
		}
		if err := s.Append(rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	recs := reopened.Records()
	if len(recs) != 3 {
		t.Fatalf("reopened len: %d", len(recs))
	}
	for i, r := range recs {
		if r.GameID != fmt.Sprintf("g%d", i) {
			t.Fatalf("order lost at %d: %s", i, r.GameID)
		}
	}
	if recs[0].Moves[0].Move != "e2e4" {
		t.Fatalf("moves lost: %+v", recs[0].Moves)
	}
}

func TestFlaggedPeerCountOnSameUTCDay(t *testing.T) {
	s := newTestStore(t)
	day := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	appendAt := func(start time.Time, isBot bool) {
		t.Helper()
		if err := s.Append(Record{GameID: "g", StartTime: start, IsBot: isBot}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	appendAt(day.Add(1*time.Hour), true)
	appendAt(day.Add(23*time.Hour), true)
	appendAt(day.Add(5*time.Hour), false)                     // human game, not counted
	appendAt(day.AddDate(0, 0, -1).Add(12*time.Hour), true)   // previous day

	if got := s.FlaggedPeerCountOn(day.Add(12 * time.Hour)); got != 2 {
		t.Fatalf("count: %d, want 2", got)
	}
	if got := s.FlaggedPeerCountOn(day.AddDate(0, 0, 1)); got != 0 {
		t.Fatalf("next day count: %d, want 0", got)
	}
}
