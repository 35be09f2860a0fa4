package domain

import "time"

// Player statuses
const (
	PlayerStatusActive  = "active"
	PlayerStatusDeleted = "deleted"
)

// Player represents a registered player. Identity is owned by the storage
// layer; the game core only ever reads the PlayerInfo projection.
type Player struct {
	UID       string    `json:"uid"`
	Name      string    `json:"name"`
	IsAI      bool      `json:"is_ai"`
	Points    int64     `json:"points"`
	Status    string    `json:"status,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PlayerInfo is the read-only projection of a player embedded in round
// snapshots and cached in Redis.
type PlayerInfo struct {
	Name   string `json:"name"`
	IsAI   bool   `json:"is_ai"`
	Points int64  `json:"points"`
}

// Info returns the read-only projection of the player.
func (p *Player) Info() PlayerInfo {
	return PlayerInfo{Name: p.Name, IsAI: p.IsAI, Points: p.Points}
}

// Deleted reports whether the player has been soft-deleted. Deleted players
// behave as absent everywhere.
func (p *Player) Deleted() bool {
	return p.Status == PlayerStatusDeleted
}
