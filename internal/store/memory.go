package store

import (
	"context"
	"sort"
	"sync"

	"github.com/pressplay/arcade/internal/domain"
)

// Memory is the in-process backend used by tests and single-node dev runs.
// Everything is copied on the way in and out so callers cannot alias the
// stored records.
type Memory struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
	games    map[domain.GameID]domain.GameRecord
	order    []domain.GameID // publish order
	reviews  map[domain.GameID]map[string]domain.Review
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]domain.Account),
		games:    make(map[domain.GameID]domain.GameRecord),
		reviews:  make(map[domain.GameID]map[string]domain.Review),
	}
}

func (m *Memory) GetAccount(_ context.Context, username string) (*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[username]
	if !ok {
		return nil, ErrNoRecord
	}
	cp := a
	cp.DownloadedGames = append([]domain.GameID(nil), a.DownloadedGames...)
	return &cp, nil
}

func (m *Memory) PutAccount(_ context.Context, a *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	cp.DownloadedGames = append([]domain.GameID(nil), a.DownloadedGames...)
	m.accounts[a.Username] = cp
	return nil
}

func (m *Memory) GetGame(_ context.Context, id domain.GameID) (*domain.GameRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	if !ok {
		return nil, ErrNoRecord
	}
	cp := g
	return &cp, nil
}

func (m *Memory) PutGame(_ context.Context, g *domain.GameRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[g.ID]; !ok {
		m.order = append(m.order, g.ID)
	}
	m.games[g.ID] = *g
	return nil
}

func (m *Memory) ListGames(_ context.Context) ([]domain.GameRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.GameRecord, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.games[id])
	}
	return out, nil
}

func (m *Memory) ListGamesByDeveloper(ctx context.Context, developer string) ([]domain.GameRecord, error) {
	all, err := m.ListGames(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0:0]
	for _, g := range all {
		if g.Developer == developer {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *Memory) UpsertReview(_ context.Context, id domain.GameID, r *domain.Review) ([]domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byPlayer, ok := m.reviews[id]
	if !ok {
		byPlayer = make(map[string]domain.Review)
		m.reviews[id] = byPlayer
	}
	byPlayer[r.Player] = *r
	return reviewsSorted(byPlayer), nil
}

func (m *Memory) ListReviews(_ context.Context, id domain.GameID) ([]domain.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return reviewsSorted(m.reviews[id]), nil
}

func (m *Memory) PutStats(_ context.Context, username string, d StatsDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[username]
	if !ok {
		return ErrNoRecord
	}
	a.Wins += d.Wins
	a.Losses += d.Losses
	a.Draws += d.Draws
	a.Plays += d.Plays
	m.accounts[username] = a
	return nil
}

func reviewsSorted(byPlayer map[string]domain.Review) []domain.Review {
	out := make([]domain.Review, 0, len(byPlayer))
	for _, r := range byPlayer {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
