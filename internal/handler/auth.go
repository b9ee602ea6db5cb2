package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-scheduling/internal/auth"
	"github.com/iliyamo/cinema-scheduling/internal/clock"
	"github.com/iliyamo/cinema-scheduling/internal/model"
	"github.com/iliyamo/cinema-scheduling/internal/repository"
)

// UserStore is the account storage used by the auth endpoints.
type UserStore interface {
	Create(ctx context.Context, email, passwordHash, role string) (uint64, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id uint64) (*model.User, error)
}

// TokenStore keeps hashed refresh tokens.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string, now time.Time) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID uint64, at time.Time) error
}

// AuthHandler serves register, login, refresh, logout and me.
type AuthHandler struct {
	users      UserStore
	tokens     TokenStore
	issuer     *auth.Issuer
	bcryptCost int
	clock      clock.Clock
	log        *zap.Logger
}

// NewAuthHandler wires the auth endpoints.  clk defaults to the system
// clock.
func NewAuthHandler(users UserStore, tokens TokenStore, issuer *auth.Issuer, bcryptCost int, clk clock.Clock, log *zap.Logger) *AuthHandler {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &AuthHandler{users: users, tokens: tokens, issuer: issuer, bcryptCost: bcryptCost, clock: clk, log: log.Named("auth")}
}

type credentialsReq struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type userPart struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, errorBody{Error: msg, Code: "UNAUTHORIZED"})
}

// issue creates an access/refresh pair and stores the refresh hash.
func (h *AuthHandler) issue(ctx context.Context, u *model.User) (authResp, error) {
	access, err := h.issuer.Access(u.ID, u.Role)
	if err != nil {
		return authResp{}, err
	}
	refresh, err := h.issuer.Refresh()
	if err != nil {
		return authResp{}, err
	}
	if err := h.tokens.StoreRefresh(ctx, u.ID, auth.HashRefresh(refresh.Value), refresh.Expires); err != nil {
		return authResp{}, err
	}
	return authResp{
		User:    userPart{ID: u.ID, Email: u.Email, Role: u.Role},
		Access:  tokenPart{Token: access.Value, Expires: access.Expires},
		Refresh: tokenPart{Token: refresh.Value, Expires: refresh.Expires},
	}, nil
}

// Register creates a CUSTOMER account and returns tokens immediately.
// Administrators are provisioned out of band.
func (h *AuthHandler) Register(c echo.Context) error {
	var req credentialsReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	hash, err := auth.HashPassword(req.Password, h.bcryptCost)
	if err != nil {
		return respondError(c, h.log, err)
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	uid, err := h.users.Create(ctx, email, hash, model.RoleCustomer)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, errorBody{Error: "email already exists", Code: "EMAIL_EXISTS"})
		}
		return respondError(c, h.log, err)
	}
	resp, err := h.issue(ctx, &model.User{ID: uid, Email: email, Role: model.RoleCustomer})
	if err != nil {
		return respondError(c, h.log, err)
	}
	h.log.Info("user registered", zap.Uint64("user_id", uid))
	return c.JSON(http.StatusCreated, resp)
}

// Login verifies credentials and returns a fresh token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req credentialsReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	u, err := h.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return unauthorized(c, "invalid credentials")
		}
		return respondError(c, h.log, err)
	}
	if !u.IsActive || !auth.VerifyPassword(u.PasswordHash, req.Password) {
		return unauthorized(c, "invalid credentials")
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh rotates a refresh token: the old one is revoked and a new
// pair is issued.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return respondError(c, h.log, badRequest("refresh_token required"))
	}
	hash := auth.HashRefresh(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := withTimeout(c)
	defer cancel()

	now := h.clock.Now()
	userID, err := h.tokens.ValidateRefresh(ctx, hash, now)
	if err != nil {
		if errors.Is(err, repository.ErrTokenInvalid) {
			return unauthorized(c, "invalid refresh token")
		}
		return respondError(c, h.log, err)
	}
	if err := h.tokens.RevokeByHash(ctx, hash, now); err != nil {
		return respondError(c, h.log, err)
	}
	u, err := h.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return unauthorized(c, "invalid refresh token")
		}
		return respondError(c, h.log, err)
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Logout revokes the refresh token in the body.  Without one, a valid
// bearer token revokes every session of its user.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	raw := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := withTimeout(c)
	defer cancel()
	now := h.clock.Now()

	if raw != "" {
		hash := auth.HashRefresh(raw)
		if _, err := h.tokens.ValidateRefresh(ctx, hash, now); err != nil {
			if errors.Is(err, repository.ErrTokenInvalid) {
				return unauthorized(c, "invalid refresh token")
			}
			return respondError(c, h.log, err)
		}
		if err := h.tokens.RevokeByHash(ctx, hash, now); err != nil {
			return respondError(c, h.log, err)
		}
		return c.NoContent(http.StatusNoContent)
	}

	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		actor, err := h.issuer.Parse(strings.TrimSpace(header[7:]))
		if err != nil {
			return unauthorized(c, "invalid token")
		}
		if err := h.tokens.RevokeAllForUser(ctx, actor.UserID, now); err != nil {
			return respondError(c, h.log, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
	return respondError(c, h.log, badRequest("provide Authorization header or refresh_token"))
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(c echo.Context) error {
	actor := actorOf(c)
	ctx, cancel := withTimeout(c)
	defer cancel()

	u, err := h.users.GetByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return unauthorized(c, "unknown user")
		}
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, userPart{ID: u.ID, Email: u.Email, Role: u.Role})
}
