package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/pressplay/arcade/internal/domain"
)

const (
	accountKeyPrefix = "arcade:account:"
	gameKeyPrefix    = "arcade:game:"
	gameIndexKey     = "arcade:games:index" // zset, score = publish unix nanos
	gameDevPrefix    = "arcade:games:dev:"  // set of game ids per developer
	reviewKeyPrefix  = "arcade:reviews:"    // hash, field = player
)

// Redis is the production backend. Records are stored as JSON values; the
// publish-time ordering lives in a sorted set so listing never scans keys.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *Redis { return &Redis{rdb: rdb} }

func (s *Redis) GetAccount(ctx context.Context, username string) (*domain.Account, error) {
	raw, err := s.rdb.Get(ctx, accountKeyPrefix+username).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoRecord
	}
	if err != nil {
		return nil, fmt.Errorf("store: get account %q: %w", username, err)
	}
	var a domain.Account
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("store: decode account %q: %w", username, err)
	}
	return &a, nil
}

func (s *Redis) PutAccount(ctx context.Context, a *domain.Account) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("store: encode account %q: %w", a.Username, err)
	}
	if err := s.rdb.Set(ctx, accountKeyPrefix+a.Username, raw, 0).Err(); err != nil {
		return fmt.Errorf("store: put account %q: %w", a.Username, err)
	}
	return nil
}

func (s *Redis) GetGame(ctx context.Context, id domain.GameID) (*domain.GameRecord, error) {
	raw, err := s.rdb.Get(ctx, gameKeyPrefix+string(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoRecord
	}
	if err != nil {
		return nil, fmt.Errorf("store: get game %q: %w", id, err)
	}
	var g domain.GameRecord
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("store: decode game %q: %w", id, err)
	}
	return &g, nil
}

func (s *Redis) PutGame(ctx context.Context, g *domain.GameRecord) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("store: encode game %q: %w", g.ID, err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, gameKeyPrefix+string(g.ID), raw, 0)
		p.ZAdd(ctx, gameIndexKey, redis.Z{
			Score:  float64(g.CreatedAt.UnixNano()),
			Member: string(g.ID),
		})
		p.SAdd(ctx, gameDevPrefix+g.Developer, string(g.ID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: put game %q: %w", g.ID, err)
	}
	return nil
}

func (s *Redis) ListGames(ctx context.Context) ([]domain.GameRecord, error) {
	ids, err := s.rdb.ZRange(ctx, gameIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("store: list games: %w", err)
	}
	return s.gamesByIDs(ctx, ids)
}

func (s *Redis) ListGamesByDeveloper(ctx context.Context, developer string) ([]domain.GameRecord, error) {
	ids, err := s.rdb.SMembers(ctx, gameDevPrefix+developer).Result()
	if err != nil {
		return nil, fmt.Errorf("store: list games for %q: %w", developer, err)
	}
	games, err := s.gamesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	// Set members come back unordered; restore publish order.
	sortByCreatedAt(games)
	return games, nil
}

func (s *Redis) gamesByIDs(ctx context.Context, ids []string) ([]domain.GameRecord, error) {
	out := make([]domain.GameRecord, 0, len(ids))
	for _, id := range ids {
		g, err := s.GetGame(ctx, domain.GameID(id))
		if errors.Is(err, ErrNoRecord) {
			continue // index can briefly outlive the record
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, nil
}

func (s *Redis) UpsertReview(ctx context.Context, id domain.GameID, r *domain.Review) ([]domain.Review, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("store: encode review: %w", err)
	}
	if err := s.rdb.HSet(ctx, reviewKeyPrefix+string(id), r.Player, raw).Err(); err != nil {
		return nil, fmt.Errorf("store: put review for %q: %w", id, err)
	}
	return s.ListReviews(ctx, id)
}

func (s *Redis) ListReviews(ctx context.Context, id domain.GameID) ([]domain.Review, error) {
	fields, err := s.rdb.HGetAll(ctx, reviewKeyPrefix+string(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: list reviews for %q: %w", id, err)
	}
	out := make([]domain.Review, 0, len(fields))
	for _, raw := range fields {
		var r domain.Review
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("store: decode review for %q: %w", id, err)
		}
		out = append(out, r)
	}
	sortReviews(out)
	return out, nil
}

// PutStats is a read-modify-write; the store is single-writer consistent,
// the broker being its only writer.
func (s *Redis) PutStats(ctx context.Context, username string, d StatsDelta) error {
	a, err := s.GetAccount(ctx, username)
	if err != nil {
		return err
	}
	a.Wins += d.Wins
	a.Losses += d.Losses
	a.Draws += d.Draws
	a.Plays += d.Plays
	return s.PutAccount(ctx, a)
}

func sortByCreatedAt(games []domain.GameRecord) {
	sort.Slice(games, func(i, j int) bool { return games[i].CreatedAt.Before(games[j].CreatedAt) })
}

func sortReviews(reviews []domain.Review) {
	sort.Slice(reviews, func(i, j int) bool { return reviews[i].CreatedAt.Before(reviews[j].CreatedAt) })
}
