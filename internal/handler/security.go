package handler

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/bakery-shop/internal/domain/auth"
)

// HeaderAPIKey carries the admin API key.
const HeaderAPIKey = "api_key"

// Visitor identifies the browser session behind a request. UserID is empty
// for guests.
type Visitor struct {
	SessionID string
	UserID    string
}

type visitorKey struct{}

// VisitorFromContext returns the visitor resolved by the session middleware.
func VisitorFromContext(ctx context.Context) Visitor {
	v, _ := ctx.Value(visitorKey{}).(Visitor)
	return v
}

// visitor resolves the session cookie, issuing a new session id when the
// cookie is missing or malformed, and looks up the bound user once.
func (h *Handler) visitor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sid string
		if c, err := r.Cookie(h.cookie.Name); err == nil {
			if _, err := uuid.Parse(c.Value); err == nil {
				sid = c.Value
			}
		}
		if sid == "" {
			sid = uuid.NewString()
		}
		http.SetCookie(w, &http.Cookie{
			Name:     h.cookie.Name,
			Value:    sid,
			Path:     "/",
			MaxAge:   int(h.cookie.TTL.Seconds()),
			HttpOnly: true,
			Secure:   h.cookie.Secure,
			SameSite: http.SameSiteLaxMode,
		})

		ctx := r.Context()
		userID, err := h.Sessions.UserID(ctx, sid)
		if err != nil {
			h.fail(w, r, errors.Wrap(err, "resolve session user"))
			return
		}

		ctx = context.WithValue(ctx, visitorKey{}, Visitor{SessionID: sid, UserID: userID})
		if userID != "" {
			ctx = zctx.With(ctx, zap.String("user_id", userID))
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if VisitorFromContext(r.Context()).UserID == "" {
			writeError(w, http.StatusUnauthorized, "login required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin authenticates the api_key header by its HMAC-SHA256 under
// the configured pepper and requires the admin scope.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(HeaderAPIKey)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		info, err := h.authenticate(r.Context(), key)
		if err != nil {
			if !errors.Is(err, auth.ErrKeyNotFound) {
				zctx.From(r.Context()).Error("API key lookup failed", zap.Error(err))
			}
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !info.HasScope(auth.ScopeAdmin) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}

		ctx := zctx.With(r.Context(), zap.String("api_key", info.Name))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) authenticate(ctx context.Context, key string) (*auth.APIKeyInfo, error) {
	hash := auth.HashKey(h.pepper, key)

	info, err := h.APIKeys.FindByHash(ctx, hex.EncodeToString(hash))
	if err != nil {
		return nil, err
	}
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
		return nil, auth.ErrKeyNotFound
	}
	return info, nil
}
