package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pressplay/arcade/internal/apperr"
	"github.com/pressplay/arcade/internal/catalog"
	"github.com/pressplay/arcade/internal/domain"
)

// DeveloperAPI is the publisher-facing gateway surface.
type DeveloperAPI struct {
	catalog *catalog.Manager
	auth    *Auth
}

func NewDeveloperAPI(cat *catalog.Manager, auth *Auth) *DeveloperAPI {
	return &DeveloperAPI{catalog: cat, auth: auth}
}

func (a *DeveloperAPI) publish(c *gin.Context) {
	var spec domain.GameSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		writeError(c, apperr.Validation("", "malformed game spec"))
		return
	}
	id, err := a.catalog.Publish(c.Request.Context(), identity(c), spec)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"game_id": id})
}

func (a *DeveloperAPI) update(c *gin.Context) {
	var spec domain.GameSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		writeError(c, apperr.Validation("", "malformed game spec"))
		return
	}
	id := domain.GameID(c.Param("id"))
	if err := a.catalog.Update(c.Request.Context(), identity(c), id, spec); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"game_id": id})
}

func (a *DeveloperAPI) delist(c *gin.Context) {
	id := domain.GameID(c.Param("id"))
	if err := a.catalog.Delist(c.Request.Context(), identity(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"game_id": id})
}

func (a *DeveloperAPI) listMine(c *gin.Context) {
	games, err := a.catalog.ListMine(c.Request.Context(), identity(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"games": games})
}
