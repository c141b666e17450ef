package session

import (
	"context"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	chesslib "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"github.com/park285/lichess-cheese-bot/internal/lichess"
	"github.com/park285/lichess-cheese-bot/internal/registry"
	"github.com/park285/lichess-cheese-bot/internal/stats"
)

type scriptedStream struct {
	events []lichess.GameEvent
	next   int
	closed bool
}

func (s *scriptedStream) Next() (lichess.GameEvent, error) {
	if s.next >= len(s.events) {
		return lichess.GameEvent{}, io.EOF
	}
	ev := s.events[s.next]
	s.next++
	return ev, nil
}

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

type fakeClient struct {
	stream *scriptedStream

	mu    sync.Mutex
	moves []string
	chats []string
}

func (c *fakeClient) StreamGame(ctx context.Context, gameID string) (GameStream, error) {
	return c.stream, nil
}

func (c *fakeClient) MakeMove(ctx context.Context, gameID, move string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.moves = append(c.moves, move)
	return nil
}

func (c *fakeClient) PostChat(ctx context.Context, gameID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chats = append(c.chats, text)
	return nil
}

type fakeEngine struct {
	move   string
	calls  int
	closed bool
}

func (e *fakeEngine) BestMove(ctx context.Context, moves []string, depth int) (string, error) {
	e.calls++
	return e.move, nil
}

func (e *fakeEngine) Close() error {
	e.closed = true
	return nil
}

func newTestSession(t *testing.T, client *fakeClient, eng *fakeEngine, reg *registry.Registry) (*Session, *stats.Store) {
	t.Helper()
	store, err := stats.Open(t.TempDir() + "/stats.json")
	if err != nil {
		t.Fatal(err)
	}
	s := New(Params{
		GameID:        "g1",
		BotUsername:   "cheese-bot",
		Depth:         15,
		GameLogDir:    t.TempDir(),
		PollInterval:  time.Millisecond,
		RateLimitWait: time.Millisecond,
	}, Deps{
		Client:    client,
		NewEngine: func(ctx context.Context) (MoveEngine, error) { return eng, nil },
		Stats:     store,
		Registry:  reg,
		Log:       zap.NewNop(),
	})
	return s, store
}

func gameFull(white, black string, state *lichess.GameState) lichess.GameEvent {
	return lichess.GameEvent{
		Type:    lichess.GameEventFull,
		ID:      "g1",
		Variant: lichess.Variant{Key: "standard"},
		Speed:   "blitz",
		Clock:   &lichess.Clock{Initial: 300000, Increment: 5000},
		White:   &lichess.Player{Name: white},
		Black:   &lichess.Player{Name: black, Title: "BOT"},
		State:   state,
	}
}

func gameState(moves, status, winner string) lichess.GameEvent {
	return lichess.GameEvent{
		Type: lichess.GameEventState,
		GameState: lichess.GameState{
			Moves:  moves,
			WTime:  45000,
			BTime:  45000,
			Status: status,
			Winner: winner,
		},
	}
}

func TestSessionPlaysAndRecordsFullGame(t *testing.T) {
	stream := &scriptedStream{events: []lichess.GameEvent{
		gameFull("cheese-bot", "rival", &lichess.GameState{
			Moves: "e2e4 e7e5", WTime: 45000, BTime: 45000, Status: "started",
		}),
		gameState("e2e4 e7e5 g1f3", "mate", "white"),
	}}
	client := &fakeClient{stream: stream}
	eng := &fakeEngine{move: "g1f3"}
	reg := registry.New()
	reg.RegisterIfAbsent("g1", struct{}{})

	s, store := newTestSession(t, client, eng, reg)
	s.Run(context.Background())

	if got := client.moves; len(got) != 1 || got[0] != "g1f3" {
		t.Fatalf("submitted moves = %v, want [g1f3]", got)
	}
	if len(client.chats) != 1 {
		t.Fatalf("expected one welcome message, got %d", len(client.chats))
	}
	if !eng.closed {
		t.Fatal("engine must be closed on session exit")
	}
	if reg.Live("g1") {
		t.Fatal("session must deregister itself")
	}
	if !stream.closed {
		t.Fatal("game stream must be closed")
	}

	recs := store.Records()
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	rec := recs[0]
	if rec.GameID != "g1" || rec.Opponent != "rival" || !rec.IsBot {
		t.Fatalf("record metadata: %+v", rec)
	}
	if rec.Variant != "standard" || rec.Speed != "blitz" {
		t.Fatalf("record variant/speed: %+v", rec)
	}
	if len(rec.Moves) != 3 {
		t.Fatalf("recorded moves = %d, want 3", len(rec.Moves))
	}
	want := []string{"e2e4", "e7e5", "g1f3"}
	for i, mv := range rec.Moves {
		if mv.Ply != i+1 || mv.Move != want[i] {
			t.Fatalf("move %d = %+v, want ply %d %s", i, mv, i+1, want[i])
		}
	}
	if rec.EndTime.IsZero() {
		t.Fatal("record end time must be set")
	}
}

func TestSessionRejectsIdentityMismatch(t *testing.T) {
	stream := &scriptedStream{events: []lichess.GameEvent{
		gameFull("alice", "bob", nil),
		gameState("e2e4", "started", ""),
	}}
	client := &fakeClient{stream: stream}
	eng := &fakeEngine{move: "e7e5"}
	reg := registry.New()
	reg.RegisterIfAbsent("g1", struct{}{})

	s, store := newTestSession(t, client, eng, reg)
	s.Run(context.Background())

	if len(client.moves) != 0 {
		t.Fatalf("no moves must be played, got %v", client.moves)
	}
	if eng.calls != 0 {
		t.Fatalf("engine must not be consulted, got %d calls", eng.calls)
	}
	if reg.Live("g1") {
		t.Fatal("session must deregister itself")
	}
	if store.Len() != 1 {
		t.Fatalf("a record is still written on abort, got %d", store.Len())
	}
}

func TestSessionSkipsIllegalEngineMove(t *testing.T) {
	stream := &scriptedStream{events: []lichess.GameEvent{
		gameFull("cheese-bot", "rival", &lichess.GameState{
			Moves: "e2e4 e7e5", WTime: 45000, BTime: 45000, Status: "started",
		}),
	}}
	client := &fakeClient{stream: stream}
	eng := &fakeEngine{move: "a1a8"}
	reg := registry.New()
	reg.RegisterIfAbsent("g1", struct{}{})

	s, store := newTestSession(t, client, eng, reg)
	s.Run(context.Background())

	if eng.calls == 0 {
		t.Fatal("engine should have been consulted")
	}
	if len(client.moves) != 0 {
		t.Fatalf("illegal move must not be submitted, got %v", client.moves)
	}
	recs := store.Records()
	if len(recs) != 1 || len(recs[0].Moves) != 2 {
		t.Fatalf("only the two replayed plies belong in the record: %+v", recs)
	}
}

func TestReplayedGameFullKeepsFirstGameLog(t *testing.T) {
	dir := t.TempDir()
	store, err := stats.Open(t.TempDir() + "/stats.json")
	if err != nil {
		t.Fatal(err)
	}
	s := New(Params{
		GameID:      "g1",
		BotUsername: "cheese-bot",
		Depth:       15,
		GameLogDir:  dir,
	}, Deps{
		Client:   &fakeClient{},
		Stats:    store,
		Registry: registry.New(),
	})

	full := gameFull("cheese-bot", "rival", nil)
	s.handleFull(full)
	if s.closeGlog == nil {
		t.Fatal("first gameFull must open the game log")
	}
	first := s.glog

	// A stream reconnect replays gameFull with the same metadata.
	s.handleFull(full)
	if s.glog != first {
		t.Fatal("replayed gameFull must not replace the game log handle")
	}

	if err := s.closeGlog(); err != nil {
		t.Fatalf("close game log: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("game log files = %d, want 1", len(entries))
	}
}

func TestRebuildMatchesIncrementalApplication(t *testing.T) {
	moves := []string{"e2e4", "e7e5", "g1f3", "b8c6", "f1b5"}

	replayed, err := rebuild(moves)
	if err != nil {
		t.Fatal(err)
	}

	incremental := chesslib.NewGame()
	for _, mv := range moves {
		if err := incremental.PushNotationMove(mv, chesslib.UCINotation{}, nil); err != nil {
			t.Fatalf("push %s: %v", mv, err)
		}
	}

	if replayed.FEN() != incremental.FEN() {
		t.Fatalf("replayed FEN %q != incremental FEN %q", replayed.FEN(), incremental.FEN())
	}
}

func TestRebuildRejectsIllegalList(t *testing.T) {
	if _, err := rebuild([]string{"e2e4", "e2e4"}); err == nil {
		t.Fatal("replay of an illegal list must fail")
	}
}

func TestDepthScalesWithRemainingClock(t *testing.T) {
	cases := []struct {
		remaining int64
		want      int
	}{
		{5000, 5},
		{20000, 8},
		{45000, 12},
		{120000, 20},
		{-1, 20},
	}
	for _, tc := range cases {
		if got := depthFor(tc.remaining, 20); got != tc.want {
			t.Fatalf("depthFor(%d, 20) = %d, want %d", tc.remaining, got, tc.want)
		}
	}
	if got := depthFor(120000, 10); got != 10 {
		t.Fatalf("configured depth caps the tiers, got %d", got)
	}
	if got := depthFor(5000, 3); got != 3 {
		t.Fatalf("low tier never raises depth above config, got %d", got)
	}
}

func TestFormatTimeControl(t *testing.T) {
	cases := []struct {
		clock *lichess.Clock
		want  string
	}{
		{&lichess.Clock{Initial: 300000, Increment: 5000}, "5m+5s"},
		{&lichess.Clock{Initial: 45000, Increment: 0}, "45s+0s"},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := formatTimeControl(tc.clock); got != tc.want {
			t.Fatalf("formatTimeControl(%+v) = %q, want %q", tc.clock, got, tc.want)
		}
	}
}
