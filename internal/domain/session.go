package domain

import "github.com/google/uuid"

type SessionID string

func NewSessionID() SessionID { return SessionID(uuid.NewString()) }

// SessionState is the room lifecycle. Completed and Failed are terminal.
type SessionState string

const (
	SessionForming   SessionState = "forming"
	SessionReady     SessionState = "ready"
	SessionLaunching SessionState = "launching"
	SessionRunning   SessionState = "running"
	SessionCompleted SessionState = "completed"
	SessionFailed    SessionState = "failed"
)

func (s SessionState) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// GameResult is a settled multiplayer outcome for stats accounting.
type GameResult struct {
	Winners []string
	Losers  []string
	Drawn   []string
}
