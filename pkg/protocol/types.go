package protocol

import "time"

// Color identifies a side of the board.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// Profile is the public identity attached to a connection at handshake time.
type Profile struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// Square addresses a board cell. Row 0 is white's back rank.
type Square struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// MoveInput is a client-submitted move. The server relays it without rule
// checking unless strict validation is enabled.
type MoveInput struct {
	From  Square `json:"from"`
	To    Square `json:"to"`
	Piece string `json:"piece,omitempty"`
}

// Move is an accepted move with its server-assigned timestamp.
type Move struct {
	From     Square    `json:"from"`
	To       Square    `json:"to"`
	Piece    string    `json:"piece,omitempty"`
	PlayedAt time.Time `json:"playedAt"`
}

// GameSnapshot is the full game state sent on start, join, and update.
// Full-state rather than diffs keeps reconnection trivial.
type GameSnapshot struct {
	ID        string    `json:"id"`
	White     Profile   `json:"white"`
	Black     Profile   `json:"black"`
	Moves     []Move    `json:"moves"`
	Turn      Color     `json:"turn"`
	Active    bool      `json:"active"`
	Winner    string    `json:"winner,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	DrawOffer Color     `json:"drawOffer,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ChallengeNotice describes a challenge to either party.
type ChallengeNotice struct {
	ID           string    `json:"id"`
	Challenger   Profile   `json:"challenger"`
	ChallengedID string    `json:"challengedId"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// GameStartedNotice is individualized per participant.
type GameStartedNotice struct {
	GameID   string  `json:"gameId"`
	Color    Color   `json:"color"`
	Opponent Profile `json:"opponent"`
	Turn     Color   `json:"turn"`
}

type ChatMessage struct {
	GameID   string    `json:"gameId"`
	SenderID string    `json:"senderId"`
	Content  string    `json:"content"`
	SentAt   time.Time `json:"timestamp"`
}

type PlayerDisconnectedNotice struct {
	PlayerID string `json:"playerId"`
}

// PresenceState is the one-time snapshot sent at admission.
type PresenceState struct {
	Online []string `json:"online"`
}

// PresenceDiff carries only the identities that changed state.
type PresenceDiff struct {
	Joined []string `json:"joined,omitempty"`
	Left   []string `json:"left,omitempty"`
}
