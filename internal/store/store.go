// Package store is the persistence adapter: typed repositories over the
// external durable record store. Session coordination never goes through
// here, only catalog, account and statistics data.
package store

import (
	"context"
	"errors"

	"github.com/pressplay/arcade/internal/domain"
)

// ErrNoRecord reports a missing key. Callers translate it into their own
// not-found taxonomy; the store does not know about rooms or ownership.
var ErrNoRecord = errors.New("store: no such record")

type Accounts interface {
	GetAccount(ctx context.Context, username string) (*domain.Account, error)
	PutAccount(ctx context.Context, a *domain.Account) error
}

type Games interface {
	GetGame(ctx context.Context, id domain.GameID) (*domain.GameRecord, error)
	PutGame(ctx context.Context, g *domain.GameRecord) error
	// ListGames returns every record, active or not, ordered by publish time.
	ListGames(ctx context.Context) ([]domain.GameRecord, error)
	ListGamesByDeveloper(ctx context.Context, developer string) ([]domain.GameRecord, error)
}

type Reviews interface {
	// UpsertReview replaces the player's previous review of the game, if any,
	// and returns the full review set for rating recomputation.
	UpsertReview(ctx context.Context, id domain.GameID, r *domain.Review) ([]domain.Review, error)
	ListReviews(ctx context.Context, id domain.GameID) ([]domain.Review, error)
}

// StatsDelta is applied to an account's counters on session settlement.
type StatsDelta struct {
	Wins   int
	Losses int
	Draws  int
	Plays  int
}

type Stats interface {
	PutStats(ctx context.Context, username string, d StatsDelta) error
}

// Store bundles the repositories a single backend provides.
type Store interface {
	Accounts
	Games
	Reviews
	Stats
}
