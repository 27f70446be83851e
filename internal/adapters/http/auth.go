package http

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/pressplay/arcade/internal/apperr"
	"github.com/pressplay/arcade/internal/domain"
	"github.com/pressplay/arcade/internal/store"
)

const identityKey = "arcade_identity"

// TokenRegistry tracks issued bearer tokens. With singleSession set, a
// username can hold only one live token at a time (the lobby rejects a
// second login while the first is active).
type TokenRegistry struct {
	mu            sync.RWMutex
	byToken       map[string]string // token -> username
	byUser        map[string]string // username -> token
	singleSession bool
}

func NewTokenRegistry(singleSession bool) *TokenRegistry {
	return &TokenRegistry{
		byToken:       make(map[string]string),
		byUser:        make(map[string]string),
		singleSession: singleSession,
	}
}

func (t *TokenRegistry) Issue(username string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.singleSession {
		if _, online := t.byUser[username]; online {
			return "", apperr.ErrInvalidCredentials.Wrap(errors.New("account already logged in elsewhere"))
		}
	} else if old, ok := t.byUser[username]; ok {
		delete(t.byToken, old)
	}
	token := uuid.NewString()
	t.byToken[token] = username
	t.byUser[username] = token
	return token, nil
}

func (t *TokenRegistry) Resolve(token string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	u, ok := t.byToken[token]
	return u, ok
}

func (t *TokenRegistry) Revoke(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if u, ok := t.byToken[token]; ok {
		delete(t.byToken, token)
		delete(t.byUser, u)
	}
}

// Auth handles registration and login against the account store.
type Auth struct {
	accounts store.Accounts
	tokens   *TokenRegistry
}

func NewAuth(accounts store.Accounts, tokens *TokenRegistry) *Auth {
	return &Auth{accounts: accounts, tokens: tokens}
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (a *Auth) register(ctx context.Context, username, password string) error {
	if _, err := a.accounts.GetAccount(ctx, username); err == nil {
		return apperr.ErrUsernameExists
	} else if !errors.Is(err, store.ErrNoRecord) {
		return apperr.ErrInternal.Wrap(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return apperr.ErrInternal.Wrap(err)
	}
	acct, err := domain.NewAccount(username, hash)
	if err != nil {
		return apperr.Validation("username", err.Error())
	}
	if err := a.accounts.PutAccount(ctx, acct); err != nil {
		return apperr.ErrInternal.Wrap(err)
	}
	log.Info().Str("module", "adapters.http").Str("username", username).Msg("account registered")
	return nil
}

func (a *Auth) login(ctx context.Context, username, password string) (string, error) {
	acct, err := a.accounts.GetAccount(ctx, username)
	if errors.Is(err, store.ErrNoRecord) {
		return "", apperr.ErrInvalidCredentials
	}
	if err != nil {
		return "", apperr.ErrInternal.Wrap(err)
	}
	if bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(password)) != nil {
		return "", apperr.ErrInvalidCredentials
	}

	token, err := a.tokens.Issue(username)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	acct.LastLoginAt = &now
	if err := a.accounts.PutAccount(ctx, acct); err != nil {
		log.Warn().Str("module", "adapters.http").Str("username", username).Err(err).Msg("failed to record login time")
	}
	return token, nil
}

// RegisterHandler and LoginHandler are shared by both gateways.
func (a *Auth) RegisterHandler(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation("username", "missing username or password"))
		return
	}
	if err := a.register(c.Request.Context(), req.Username, req.Password); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(201, gin.H{"username": req.Username})
}

func (a *Auth) LoginHandler(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation("username", "missing username or password"))
		return
	}
	token, err := a.login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(200, gin.H{"token": token})
}

func (a *Auth) LogoutHandler(c *gin.Context) {
	if token := bearerToken(c); token != "" {
		a.tokens.Revoke(token)
	}
	c.JSON(200, gin.H{"ok": true})
}

// RequireAuth resolves the bearer token into an identity for handlers
// downstream.
func (a *Auth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			writeError(c, apperr.ErrUnauthenticated)
			return
		}
		username, ok := a.tokens.Resolve(token)
		if !ok {
			writeError(c, apperr.ErrUnauthenticated)
			return
		}
		c.Set(identityKey, username)
		c.Next()
	}
}

func identity(c *gin.Context) string {
	return c.GetString(identityKey)
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	// Websocket clients cannot set headers from browsers; accept a query
	// fallback for the watch endpoint.
	return c.Query("token")
}
