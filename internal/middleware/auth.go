package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	// AuthCookie carries the login token.
	AuthCookie = "authenticated"
	// AuthMaxAge is how long a login lasts.
	AuthMaxAge = 30 * 24 * time.Hour
)

// Authenticator checks the site password and tracks issued login tokens.
type Authenticator struct {
	hash   []byte
	mu     sync.Mutex
	tokens map[string]time.Time
	now    func() time.Time
}

// NewAuthenticator hashes the site password.
func NewAuthenticator(password string) (*Authenticator, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &Authenticator{hash: hash, tokens: make(map[string]time.Time), now: time.Now}, nil
}

// Login returns a fresh token when password matches.
func (a *Authenticator) Login(password string) (string, bool) {
	if bcrypt.CompareHashAndPassword(a.hash, []byte(password)) != nil {
		return "", false
	}
	token := uuid.NewString()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokens[token] = a.now().Add(AuthMaxAge)
	return token, true
}

// Valid reports whether token is a live login.
func (a *Authenticator) Valid(token string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	expires, ok := a.tokens[token]
	if !ok {
		return false
	}
	if a.now().After(expires) {
		delete(a.tokens, token)
		return false
	}
	return true
}

// Logout forgets token.
func (a *Authenticator) Logout(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.tokens, token)
}

func isPublic(path string) bool {
	return path == "/login" ||
		path == "/auth/login" ||
		path == "/healthz" ||
		strings.HasPrefix(path, "/static/") ||
		strings.HasPrefix(path, "/css/") ||
		strings.HasPrefix(path, "/js/")
}

// AuthMiddleware requires a valid login cookie outside the public paths.
// A nil authenticator disables the check.
func AuthMiddleware(auth *Authenticator, next http.Handler) http.Handler {
	if auth == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(AuthCookie)
		if err != nil || !auth.Valid(cookie.Value) {
			// API and AJAX callers get a status, browsers the login page
			if strings.HasPrefix(r.URL.Path, "/api/") ||
				r.Header.Get("X-Requested-With") == "XMLHttpRequest" ||
				r.Header.Get("Content-Type") == "application/json" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}
