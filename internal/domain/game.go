// Package domain contains the broker's entities: metadata only, no
// orchestration logic.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type GameID string

func NewGameID() GameID { return GameID(uuid.NewString()) }

type GameType string

const (
	GameTypeCLI         GameType = "CLI"
	GameTypeGUI         GameType = "GUI"
	GameTypeMultiplayer GameType = "Multiplayer"
)

func (t GameType) Valid() bool {
	switch t {
	case GameTypeCLI, GameTypeGUI, GameTypeMultiplayer:
		return true
	}
	return false
}

// DefaultMaxPlayers applies when a publish spec leaves max_players unset.
const DefaultMaxPlayers = 2

// GameSpec is the developer-supplied input of a publish or update.
// Validation rules live in the catalog; the validate tags cover the
// structural part and the catalog adds the semantic checks (placeholders,
// version format, bundle directory).
type GameSpec struct {
	Name           string   `json:"name" validate:"required"`
	Type           GameType `json:"type" validate:"required"`
	Description    string   `json:"description"`
	MinPlayers     int      `json:"min_players" validate:"gte=0"`
	MaxPlayers     int      `json:"max_players" validate:"gte=0"`
	Version        string   `json:"version" validate:"required"`
	BundleDir      string   `json:"bundle_dir" validate:"required"`
	LaunchCommand  string   `json:"launch_command" validate:"required"`
	ServerCommand  string   `json:"server_command"`
	CompileCommand string   `json:"compile_command"`
}

// GameRecord is the catalog entry. The launch templates are stored parsed;
// a zero ServerCommand means the game has no server process, a zero
// CompileCommand means no build step.
type GameRecord struct {
	ID          GameID   `json:"id"`
	Developer   string   `json:"developer"`
	Name        string   `json:"name"`
	Type        GameType `json:"type"`
	Description string   `json:"description"`
	MinPlayers  int      `json:"min_players"`
	MaxPlayers  int      `json:"max_players"`
	Version     Version  `json:"version"`
	BundleDir   string   `json:"bundle_dir"`

	LaunchCommand  Command `json:"launch_command"`
	ServerCommand  Command `json:"server_command,omitzero"`
	CompileCommand Command `json:"compile_command,omitzero"`

	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	DownloadCount int       `json:"download_count"`
	ReviewCount   int       `json:"review_count"`
	AverageRating float64   `json:"average_rating"`
}

// ServerMode reports whether launch starts a dedicated server process that
// member clients connect out to.
func (g *GameRecord) ServerMode() bool { return !g.ServerCommand.IsZero() }
