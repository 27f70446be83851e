package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/pressplay/arcade/internal/apperr"
	"github.com/pressplay/arcade/internal/catalog"
	"github.com/pressplay/arcade/internal/domain"
	"github.com/pressplay/arcade/internal/session"
	"github.com/pressplay/arcade/internal/store"
)

// PlayerAPI is the lobby-facing gateway surface: catalog browsing,
// downloads, reviews and room lifecycle.
type PlayerAPI struct {
	catalog  *catalog.Manager
	broker   *session.Broker
	accounts store.Accounts
	reviews  store.Reviews
	auth     *Auth
}

func NewPlayerAPI(cat *catalog.Manager, broker *session.Broker, accounts store.Accounts, reviews store.Reviews, auth *Auth) *PlayerAPI {
	return &PlayerAPI{
		catalog:  cat,
		broker:   broker,
		accounts: accounts,
		reviews:  reviews,
		auth:     auth,
	}
}

func (a *PlayerAPI) browse(c *gin.Context) {
	games, err := a.catalog.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"games": games})
}

func (a *PlayerAPI) getGame(c *gin.Context) {
	id := domain.GameID(c.Param("id"))
	rec, err := a.catalog.Get(c.Request.Context(), id, c.Query("version"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (a *PlayerAPI) listReviews(c *gin.Context) {
	id := domain.GameID(c.Param("id"))
	if _, err := a.catalog.Get(c.Request.Context(), id, ""); err != nil {
		writeError(c, err)
		return
	}
	reviews, err := a.reviews.ListReviews(c.Request.Context(), id)
	if err != nil {
		writeError(c, apperr.ErrInternal.Wrap(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviews": reviews})
}

type reviewRequest struct {
	Rating  int    `json:"rating" binding:"required"`
	Comment string `json:"comment"`
}

// submitReview requires the player to have downloaded the game first.
// Resubmitting replaces the previous review and the game's rating summary
// is recomputed from the full set.
func (a *PlayerAPI) submitReview(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation("rating", "missing rating"))
		return
	}
	ctx := c.Request.Context()
	id := domain.GameID(c.Param("id"))
	player := identity(c)

	if _, err := a.catalog.Get(ctx, id, ""); err != nil {
		writeError(c, err)
		return
	}
	acct, err := a.accounts.GetAccount(ctx, player)
	if err != nil {
		writeError(c, apperr.ErrInternal.Wrap(err))
		return
	}
	if !acct.HasDownloaded(id) {
		writeError(c, apperr.ErrAuthorization.Wrap(errors.New("review requires a prior download")))
		return
	}

	review, err := domain.NewReview(player, req.Rating, req.Comment)
	if err != nil {
		writeError(c, apperr.Validation("rating", err.Error()))
		return
	}
	all, err := a.reviews.UpsertReview(ctx, id, review)
	if err != nil {
		writeError(c, apperr.ErrInternal.Wrap(err))
		return
	}
	if err := a.catalog.ApplyReviewStats(ctx, id, all); err != nil {
		log.Warn().Str("module", "adapters.http").Str("game", string(id)).
			Err(err).Msg("failed to refresh rating summary")
	}
	c.JSON(http.StatusCreated, gin.H{"reviews": len(all)})
}

func (a *PlayerAPI) profile(c *gin.Context) {
	acct, err := a.accounts.GetAccount(c.Request.Context(), identity(c))
	if err != nil {
		writeError(c, apperr.ErrInternal.Wrap(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"username":     acct.Username,
		"wins":         acct.Wins,
		"losses":       acct.Losses,
		"draws":        acct.Draws,
		"plays":        acct.Plays,
		"last_login":   acct.LastLoginAt,
		"member_since": acct.CreatedAt,
	})
}

type createRoomRequest struct {
	GameID domain.GameID `json:"game_id" binding:"required"`
}

func (a *PlayerAPI) createRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation("game_id", "missing game_id"))
		return
	}
	id, err := a.broker.CreateRoom(c.Request.Context(), req.GameID, identity(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"room_id": id})
}

func (a *PlayerAPI) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": a.broker.ListRooms()})
}

func (a *PlayerAPI) joinRoom(c *gin.Context) {
	id := domain.SessionID(c.Param("id"))
	if err := a.broker.JoinRoom(id, identity(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_id": id})
}

func (a *PlayerAPI) leaveRoom(c *gin.Context) {
	id := domain.SessionID(c.Param("id"))
	if err := a.broker.LeaveRoom(id, identity(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_id": id})
}

func (a *PlayerAPI) startRoom(c *gin.Context) {
	id := domain.SessionID(c.Param("id"))
	info, err := a.broker.StartSession(c.Request.Context(), id, identity(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

type resultRequest struct {
	Winners []string `json:"winners"`
}

func (a *PlayerAPI) reportResult(c *gin.Context) {
	var req resultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation("winners", "malformed result"))
		return
	}
	id := domain.SessionID(c.Param("id"))
	if err := a.broker.ReportResult(c.Request.Context(), id, identity(c), req.Winners); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_id": id})
}

func (a *PlayerAPI) teardownRoom(c *gin.Context) {
	id := domain.SessionID(c.Param("id"))
	if err := a.broker.TeardownRoom(id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_id": id})
}

func (a *PlayerAPI) roomStatus(c *gin.Context) {
	id := domain.SessionID(c.Param("id"))
	snap, err := a.broker.Status(id, identity(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
