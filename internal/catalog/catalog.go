// Package catalog manages the authoritative game listings.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/pressplay/arcade/internal/apperr"
	"github.com/pressplay/arcade/internal/domain"
	"github.com/pressplay/arcade/internal/store"
)

type Manager struct {
	games    store.Games
	validate *validator.Validate
}

func NewManager(games store.Games) *Manager {
	return &Manager{
		games:    games,
		validate: validator.New(),
	}
}

// Publish validates spec, assigns a fresh id and persists the record.
func (m *Manager) Publish(ctx context.Context, developer string, spec domain.GameSpec) (domain.GameID, error) {
	rec, err := m.buildRecord(developer, spec)
	if err != nil {
		return "", err
	}
	rec.ID = domain.NewGameID()
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.Active = true

	if err := m.games.PutGame(ctx, rec); err != nil {
		return "", apperr.ErrInternal.Wrap(err)
	}
	log.Info().Str("module", "catalog").Str("game", string(rec.ID)).
		Str("name", rec.Name).Str("version", rec.Version.String()).
		Str("developer", developer).Msg("game published")
	return rec.ID, nil
}

// Update overwrites the record in one Put: bundle, commands and version all
// change together or not at all, so concurrent readers never see a partial
// record. The prior version's data is discarded.
func (m *Manager) Update(ctx context.Context, developer string, id domain.GameID, spec domain.GameSpec) error {
	current, err := m.activeGame(ctx, id)
	if err != nil {
		return err
	}
	if current.Developer != developer {
		return apperr.ErrAuthorization
	}

	rec, err := m.buildRecord(developer, spec)
	if err != nil {
		return err
	}
	if rec.Version.Compare(current.Version) < 0 {
		return apperr.Validation("version", "version must not decrease")
	}

	rec.ID = current.ID
	rec.Active = true
	rec.CreatedAt = current.CreatedAt
	rec.UpdatedAt = time.Now().UTC()
	rec.DownloadCount = current.DownloadCount
	rec.ReviewCount = current.ReviewCount
	rec.AverageRating = current.AverageRating

	if err := m.games.PutGame(ctx, rec); err != nil {
		return apperr.ErrInternal.Wrap(err)
	}
	log.Info().Str("module", "catalog").Str("game", string(id)).
		Str("version", rec.Version.String()).Msg("game updated")
	return nil
}

// Delist marks the game inactive. Sessions pinned to the old snapshot keep
// running; the id is never reused.
func (m *Manager) Delist(ctx context.Context, developer string, id domain.GameID) error {
	current, err := m.activeGame(ctx, id)
	if err != nil {
		return err
	}
	if current.Developer != developer {
		return apperr.ErrAuthorization
	}
	current.Active = false
	current.UpdatedAt = time.Now().UTC()
	if err := m.games.PutGame(ctx, current); err != nil {
		return apperr.ErrInternal.Wrap(err)
	}
	log.Info().Str("module", "catalog").Str("game", string(id)).Msg("game delisted")
	return nil
}

// List returns the active catalog in publish order.
func (m *Manager) List(ctx context.Context) ([]domain.GameRecord, error) {
	all, err := m.games.ListGames(ctx)
	if err != nil {
		return nil, apperr.ErrInternal.Wrap(err)
	}
	out := all[:0:0]
	for _, g := range all {
		if g.Active {
			out = append(out, g)
		}
	}
	return out, nil
}

// ListMine returns the developer's active games in publish order.
func (m *Manager) ListMine(ctx context.Context, developer string) ([]domain.GameRecord, error) {
	all, err := m.games.ListGamesByDeveloper(ctx, developer)
	if err != nil {
		return nil, apperr.ErrInternal.Wrap(err)
	}
	out := all[:0:0]
	for _, g := range all {
		if g.Active {
			out = append(out, g)
		}
	}
	return out, nil
}

// Get returns the current record. Only the latest version is retained, so a
// non-empty versionPin can only be satisfied when it matches exactly.
func (m *Manager) Get(ctx context.Context, id domain.GameID, versionPin string) (*domain.GameRecord, error) {
	rec, err := m.activeGame(ctx, id)
	if err != nil {
		return nil, err
	}
	if versionPin != "" && versionPin != rec.Version.String() {
		return nil, apperr.ErrVersionUnavailable
	}
	return rec, nil
}

// RecordDownload bumps the game's download counter.
func (m *Manager) RecordDownload(ctx context.Context, id domain.GameID) error {
	rec, err := m.activeGame(ctx, id)
	if err != nil {
		return err
	}
	rec.DownloadCount++
	if err := m.games.PutGame(ctx, rec); err != nil {
		return apperr.ErrInternal.Wrap(err)
	}
	return nil
}

// ApplyReviewStats refreshes the denormalized rating summary.
func (m *Manager) ApplyReviewStats(ctx context.Context, id domain.GameID, reviews []domain.Review) error {
	rec, err := m.activeGame(ctx, id)
	if err != nil {
		return err
	}
	total := 0
	for _, r := range reviews {
		total += r.Rating
	}
	rec.ReviewCount = len(reviews)
	if len(reviews) > 0 {
		rec.AverageRating = float64(total) / float64(len(reviews))
	} else {
		rec.AverageRating = 0
	}
	if err := m.games.PutGame(ctx, rec); err != nil {
		return apperr.ErrInternal.Wrap(err)
	}
	return nil
}

func (m *Manager) activeGame(ctx context.Context, id domain.GameID) (*domain.GameRecord, error) {
	rec, err := m.games.GetGame(ctx, id)
	if errors.Is(err, store.ErrNoRecord) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.ErrInternal.Wrap(err)
	}
	if !rec.Active {
		return nil, apperr.ErrNotFound
	}
	return rec, nil
}
