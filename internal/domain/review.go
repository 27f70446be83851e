package domain

import (
	"errors"
	"time"
)

var ErrRatingOutOfRange = errors.New("rating must be between 1 and 5")

// Review is one player's rating of a game. A player has at most one review
// per game; resubmitting replaces the old one.
type Review struct {
	Player    string    `json:"player"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func NewReview(player string, rating int, comment string) (*Review, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrRatingOutOfRange
	}
	return &Review{
		Player:    player,
		Rating:    rating,
		Comment:   comment,
		CreatedAt: time.Now().UTC(),
	}, nil
}
