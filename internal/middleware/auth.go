// Package middleware содержит HTTP middleware сервиса краудфандинга.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"
)

type contextKey string

const identityKey contextKey = "identity"

const (
	authCookieName = "identity_token"
	authCookieTTL  = 365 * 24 * time.Hour
)

// AuthMiddleware проверяет подписанный cookie с идентификатором стороны.
// Идентификаторы выдаются снаружи; сервис лишь удостоверяет, что cookie
// подписан его ключом.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт AuthMiddleware с указанным секретным ключом.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Middleware проверяет cookie и добавляет идентификатор стороны в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(authCookieName)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		identity, ok := a.parseCookie(cookie.Value)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetAuthCookie устанавливает подписанный cookie для указанного идентификатора.
func (a *AuthMiddleware) SetAuthCookie(w http.ResponseWriter, identity string) {
	cookie := &http.Cookie{
		Name:     authCookieName,
		Value:    a.signIdentity(identity),
		Path:     "/",
		Expires:  time.Now().Add(authCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

func (a *AuthMiddleware) signIdentity(identity string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(identity))
	return identity + "." + hex.EncodeToString(mac.Sum(nil))
}

// parseCookie отделяет подпись по последней точке: сам идентификатор может
// содержать точки.
func (a *AuthMiddleware) parseCookie(cookieValue string) (string, bool) {
	sep := strings.LastIndex(cookieValue, ".")
	if sep <= 0 {
		return "", false
	}

	identity := cookieValue[:sep]
	signature := cookieValue[sep+1:]

	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(identity))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return "", false
	}

	return identity, true
}

// GetIdentityFromContext извлекает идентификатор стороны из контекста запроса.
func GetIdentityFromContext(ctx context.Context) (string, bool) {
	identity, ok := ctx.Value(identityKey).(string)
	return identity, ok
}
