package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pos-waiter/internal/config"
	"github.com/iliyamo/pos-waiter/internal/middleware"
	"github.com/iliyamo/pos-waiter/internal/repository"
	"github.com/iliyamo/pos-waiter/internal/utils"
)

// AuthHandler serves the layered login: handshake, owner password, waiter
// list, waiter PIN and shift status.
type AuthHandler struct {
	Cfg        config.ServerConfig
	Waiters    repository.WaiterDirectory
	OwnerHash  string // bcrypt hash of the owner password
	InstanceID string // identifies this server process
}

// NewAuthHandler hashes the configured owner password once.
func NewAuthHandler(cfg config.ServerConfig, w repository.WaiterDirectory, instanceID string) (*AuthHandler, error) {
	hash, err := utils.HashSecret(cfg.OwnerPassword, cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	return &AuthHandler{Cfg: cfg, Waiters: w, OwnerHash: hash, InstanceID: instanceID}, nil
}

// ----- DTOs -----

type ownerReq struct {
	Password string `json:"password"`
}

type loginReq struct {
	WaiterID int64  `json:"waiterId"`
	PIN      string `json:"pin"`
}

type waiterPart struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type loginResp struct {
	Waiter      waiterPart `json:"waiter"`
	AccessToken string     `json:"accessToken"`
	LastCheckin string     `json:"lastCheckin"`
}

// Handshake tells a client it reached a POS server and hands it a
// short-lived pairing token plus this process's instance id.
func (h *AuthHandler) Handshake(c echo.Context) error {
	tok, err := utils.NewInstanceID()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token generation failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"valid": true, "token": tok, "instanceId": h.InstanceID})
}

// VerifyOwner checks the owner password.  A wrong password is 401 with
// ok=false.
func (h *AuthHandler) VerifyOwner(c echo.Context) error {
	var req ownerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "error": "invalid body"})
	}
	if req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "error": "password is required"})
	}
	if !utils.VerifySecret(h.OwnerHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"ok": false, "error": "Invalid owner password"})
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// ActiveWaiters lists the waiters on shift.
func (h *AuthHandler) ActiveWaiters(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()
	ws, err := h.Waiters.ActiveWaiters(ctx)
	if err != nil {
		return storeError(c, err)
	}
	out := make([]waiterPart, 0, len(ws))
	for _, w := range ws {
		out = append(out, waiterPart{ID: w.ID, Name: w.Name})
	}
	return c.JSON(http.StatusOK, out)
}

// WaiterLogin exchanges a waiter id and PIN for an access token.  Unknown
// waiters are 404, a wrong PIN or an ended shift 401.
func (h *AuthHandler) WaiterLogin(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil || req.WaiterID <= 0 || req.PIN == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "waiterId and pin are required"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	w, err := h.Waiters.WaiterByID(ctx, req.WaiterID)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Waiter not found"})
	}
	if err != nil {
		return storeError(c, err)
	}
	if !w.Active || !utils.VerifySecret(w.PINHash, req.PIN) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid pin"})
	}

	at, err := utils.NewAccessToken(h.Cfg.JWTSecret, w.ID, w.Name, h.Cfg.AccessTTL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token generation failed"})
	}
	return c.JSON(http.StatusOK, loginResp{
		Waiter:      waiterPart{ID: w.ID, Name: w.Name},
		AccessToken: at.Token,
		LastCheckin: time.Now().UTC().Format(time.RFC3339),
	})
}

// WaiterStatus reports whether a waiter's shift is still active.  The
// waiterId query defaults to the token's waiter.
func (h *AuthHandler) WaiterStatus(c echo.Context) error {
	id := middleware.WaiterID(c)
	if q := c.QueryParam("waiterId"); q != "" {
		n, err := strconv.ParseInt(q, 10, 64)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid waiterId"})
		}
		id = n
	}
	w, err := h.Waiters.WaiterByID(c.Request().Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Not found"})
	}
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"active": w.Active})
}
