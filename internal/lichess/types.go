package lichess

// Payload shapes for the bot API. The global event stream yields Event lines;
// per-game streams yield GameEvent lines. Field names follow the NDJSON wire
// format.

type Variant struct {
	Key  string `json:"key"`
	Name string `json:"name,omitempty"`
}

type Challenger struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Title  string `json:"title,omitempty"`
	Rating int    `json:"rating,omitempty"`
}

type Challenge struct {
	ID         string      `json:"id"`
	Speed      string      `json:"speed"`
	Variant    Variant     `json:"variant"`
	Challenger *Challenger `json:"challenger"`
	Rated      bool        `json:"rated"`
	IsBot      bool        `json:"isBot,omitempty"`
}

type GameRef struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
	Winner string `json:"winner,omitempty"`
}

// Event is one line of the global event stream.
type Event struct {
	Type      string     `json:"type"`
	Challenge *Challenge `json:"challenge,omitempty"`
	Game      *GameRef   `json:"game,omitempty"`
}

const (
	EventChallenge  = "challenge"
	EventGameStart  = "gameStart"
	EventGameFinish = "gameFinish"
)

type Clock struct {
	Initial   int64 `json:"initial"`
	Increment int64 `json:"increment"`
}

type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Title  string `json:"title,omitempty"`
	Rating int    `json:"rating,omitempty"`
}

// GameState carries the authoritative move list and per-color clocks. It
// appears inline on gameState lines and nested under "state" on gameFull.
type GameState struct {
	Moves  string `json:"moves"`
	WTime  int64  `json:"wtime"`
	BTime  int64  `json:"btime"`
	WInc   int64  `json:"winc"`
	BInc   int64  `json:"binc"`
	Status string `json:"status"`
	Winner string `json:"winner,omitempty"`
}

// GameEvent is one line of a per-game stream. For gameFull lines the metadata
// fields and State are set; for gameState lines the embedded GameState fields
// are set directly.
type GameEvent struct {
	Type    string     `json:"type"`
	ID      string     `json:"id,omitempty"`
	Variant Variant    `json:"variant,omitempty"`
	Speed   string     `json:"speed,omitempty"`
	Clock   *Clock     `json:"clock,omitempty"`
	White   *Player    `json:"white,omitempty"`
	Black   *Player    `json:"black,omitempty"`
	State   *GameState `json:"state,omitempty"`
	GameState
}

const (
	GameEventFull  = "gameFull"
	GameEventState = "gameState"
)

// Terminal status values on gameState. Any of these ends the session.
var terminalStatuses = map[string]struct{}{
	"mate":       {},
	"resign":     {},
	"timeout":    {},
	"outoftime":  {},
	"draw":       {},
	"aborted":    {},
	"stalemate":  {},
	"cheat":      {},
	"variantEnd": {},
}

// TerminalStatus reports whether a gameState status value ends the game.
func TerminalStatus(status string) bool {
	_, ok := terminalStatuses[status]
	return ok
}

// ChallengeTerms are the fixed terms used for outgoing invitations.
type ChallengeTerms struct {
	Rated          bool
	ClockLimit     int
	ClockIncrement int
	Variant        string
}
