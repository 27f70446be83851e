package domain

import (
	"errors"
	"time"
)

const MaxUsernameLen = 36

var (
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUsernameTooLong = errors.New("username too long")
)

// Account is a developer or player identity. The broker never deletes
// accounts; only the counters and timestamps mutate.
type Account struct {
	Username     string     `json:"username"`
	PasswordHash []byte     `json:"password_hash"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`

	Wins   int `json:"wins"`
	Losses int `json:"losses"`
	Draws  int `json:"draws"`
	Plays  int `json:"plays"`

	// Games the player has downloaded at least once; gates review submission.
	DownloadedGames []GameID `json:"downloaded_games,omitempty"`
}

func NewAccount(username string, passwordHash []byte) (*Account, error) {
	if username == "" {
		return nil, ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return nil, ErrUsernameTooLong
	}
	return &Account{
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

func (a *Account) HasDownloaded(id GameID) bool {
	for _, g := range a.DownloadedGames {
		if g == id {
			return true
		}
	}
	return false
}

// MarkDownloaded records id once; re-downloads do not duplicate.
func (a *Account) MarkDownloaded(id GameID) {
	if !a.HasDownloaded(id) {
		a.DownloadedGames = append(a.DownloadedGames, id)
	}
}
