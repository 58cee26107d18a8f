package handlers

import (
	"crypto/rand"
	"crypto/sha256"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/ekaya-inc/opd-explorer/pkg/session"
)

const cookieKeyID = "id"

// SessionCookies binds browser cookies to explorer sessions. The cookie
// only carries the session ID; all state stays server-side.
type SessionCookies struct {
	store   *sessions.CookieStore
	name    string
	manager *session.Manager
	logger  *zap.Logger
}

// NewSessionCookies creates the cookie store. The secret is SHA-256 hashed
// to derive the signing key; an empty secret uses a random key.
func NewSessionCookies(secret, name string, ttl time.Duration, secure bool, manager *session.Manager, logger *zap.Logger) *SessionCookies {
	var key []byte
	if secret != "" {
		sum := sha256.Sum256([]byte(secret))
		key = sum[:]
	} else {
		key = make([]byte, 32)
		_, _ = rand.Read(key)
	}

	store := sessions.NewCookieStore(key)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionCookies{store: store, name: name, manager: manager, logger: logger}
}

// Session returns the caller's explorer session, starting one and setting
// the cookie when the request has none or it expired.
func (c *SessionCookies) Session(w http.ResponseWriter, r *http.Request) (*session.Session, error) {
	cs, err := c.store.Get(r, c.name)
	if err != nil {
		// Undecodable cookie, e.g. after a secret rotation. cs is a fresh session.
		c.logger.Debug("Ignoring invalid session cookie", zap.Error(err))
	}

	id, _ := cs.Values[cookieKeyID].(string)
	s, created := c.manager.GetOrCreate(id)
	if created {
		cs.Values[cookieKeyID] = s.ID
		if err := cs.Save(r, w); err != nil {
			return nil, err
		}
	}
	return s, nil
}
