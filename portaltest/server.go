// Package portaltest runs an in-process fake of the portal backend for
// tests: local login and registration with bcrypt hashed passwords, JWT
// bearer tokens, the OpenID authorization URL endpoint and a fake identity
// provider that redirects back with a token or an error.
package portaltest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/hashid/pkg/hashid"
	"golang.org/x/crypto/bcrypt"
)

// APIPrefix is where the API routes are mounted.
const APIPrefix = "/api"

type user struct {
	Subject      string
	Email        string
	Name         string
	PasswordHash string
}

type override struct {
	status int
	body   string
}

// Server is a fake portal backend.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	signingKey  []byte
	tokenTTL    time.Duration
	callbackURL string
	users       map[string]*user
	revoked     map[string]struct{}
	hits        map[string]int
	overrides   map[string]override
	hold        chan struct{}
	noAuthURL   bool
}

// Option customizes a Server.
type Option func(*Server)

// WithCallbackURL sets where the fake identity provider sends the browser back.
func WithCallbackURL(u string) Option {
	return func(s *Server) {
		s.callbackURL = u
	}
}

// WithTokenTTL sets the lifetime of issued tokens.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Server) {
		s.tokenTTL = ttl
	}
}

// New starts a fake backend. Close it when done.
func New(opts ...Option) *Server {
	s := &Server{
		signingKey:  []byte("portaltest-signing-key"),
		tokenTTL:    time.Hour,
		callbackURL: "http://127.0.0.1:5173/auth/callback",
		users:       map[string]*user{},
		revoked:     map[string]struct{}{},
		hits:        map[string]int{},
		overrides:   map[string]override{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	r := chi.NewRouter()
	r.Use(s.count)
	r.Route(APIPrefix, func(r chi.Router) {
		r.Get("/health", s.health)
		r.Get("/auth/me", s.me)
		r.Get("/auth/openid/url", s.openIDURL)
		r.Post("/auth/login", s.login)
		r.Post("/auth/register", s.register)
	})
	r.Get("/idp/authorize", s.authorize)

	s.Server = httptest.NewServer(r)
	return s
}

// BaseURL returns the API base URL to configure clients with.
func (s *Server) BaseURL() string {
	return s.URL + APIPrefix
}

// SetCallbackURL changes the callback the identity provider redirects to.
func (s *Server) SetCallbackURL(u string) {
	s.mu.Lock()
	s.callbackURL = u
	s.mu.Unlock()
}

// AddUser registers a local user and returns its subject.
func (s *Server) AddUser(email, password, name string) string {
	u, err := s.createUser(email, password, name)
	if err != nil {
		panic(err)
	}
	return u.Subject
}

// IssueToken mints a token for subject the way the backend would.
func (s *Server) IssueToken(subject, email, name, source string) string {
	claims := jwt.MapClaims{
		"sub":       subject,
		"email":     email,
		"name":      name,
		"auth_type": source,
		"iat":       time.Now().Unix(),
		"exp":       time.Now().Add(s.tokenTTL).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		panic(err)
	}
	return token
}

// Revoke makes /auth/me answer 403 for token.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	s.revoked[token] = struct{}{}
	s.mu.Unlock()
}

// Override forces the response for an API path, e.g. "/auth/me".
// A zero status removes the override.
func (s *Server) Override(path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.overrides, path)
		return
	}
	s.overrides[path] = override{status: status, body: body}
}

// OmitAuthURL makes /auth/openid/url answer 200 without an authUrl.
func (s *Server) OmitAuthURL(omit bool) {
	s.mu.Lock()
	s.noAuthURL = omit
	s.mu.Unlock()
}

// HoldMe blocks /auth/me requests until release is called.
func (s *Server) HoldMe() (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.hold = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.hold = nil
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Hits returns how many requests reached path (full path, e.g. "/api/auth/me").
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		ov, ok := s.overrides[strings.TrimPrefix(r.URL.Path, APIPrefix)]
		s.mu.Unlock()

		if ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(ov.status)
			_, _ = w.Write([]byte(ov.body))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	hold := s.hold
	s.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-r.Context().Done():
			return
		}
	}

	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Missing bearer token"})
		return
	}

	s.mu.Lock()
	_, revoked := s.revoked[raw]
	s.mu.Unlock()
	if revoked {
		writeJSON(w, http.StatusForbidden, map[string]any{"message": "Token revoked"})
		return
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		msg := "Invalid token"
		if errors.Is(err, jwt.ErrTokenExpired) {
			msg = "Token expired"
		}
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": msg})
		return
	}

	userObj := map[string]any{}
	for _, key := range []string{"sub", "email", "name", "auth_type"} {
		if v, ok := claims[key]; ok {
			userObj[key] = v
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userObj})
}

func (s *Server) openIDURL(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	omit := s.noAuthURL
	callback := s.callbackURL
	s.mu.Unlock()

	if omit {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}

	q := url.Values{}
	q.Set("client_id", "portaltest")
	q.Set("redirect_uri", callback)
	writeJSON(w, http.StatusOK, map[string]any{
		"authUrl": s.URL + "/idp/authorize?" + q.Encode(),
	})
}

// authorize plays the identity provider: ?deny=1 returns an error,
// otherwise a token for ?email= (default openid.user@example.com).
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) {
	redirect := r.URL.Query().Get("redirect_uri")
	if redirect == "" {
		http.Error(w, "missing redirect_uri", http.StatusBadRequest)
		return
	}

	back, err := url.Parse(redirect)
	if err != nil {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}

	q := back.Query()
	if r.URL.Query().Get("deny") != "" {
		q.Set("error", "access_denied")
		q.Set("error_description", "User cancelled")
	} else {
		email := r.URL.Query().Get("email")
		if email == "" {
			email = "openid.user@example.com"
		}
		q.Set("token", s.IssueToken(subjectFor(email), email, "OpenID User", "openid"))
	}
	back.RawQuery = q.Encode()

	http.Redirect(w, r, back.String(), http.StatusFound)
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" || body.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Email and password are required"})
		return
	}

	s.mu.Lock()
	u, ok := s.users[strings.ToLower(body.Email)]
	s.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(body.Password)) != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Invalid email or password"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token": s.IssueToken(u.Subject, u.Email, u.Name, "local"),
	})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" || body.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Email and password are required"})
		return
	}
	if len(body.Password) < 8 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Password must be at least 8 characters"})
		return
	}

	u, err := s.createUser(body.Email, body.Password, body.Name)
	if err != nil {
		writeJSON(w, http.StatusConflict, map[string]any{"message": err.Error()})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "User registered",
		"user":    map[string]any{"sub": u.Subject, "email": u.Email, "name": u.Name},
	})
}

var errEmailTaken = errors.New("Email already registered")

func (s *Server) createUser(email, password, name string) (*user, error) {
	key := strings.ToLower(strings.TrimSpace(email))

	s.mu.Lock()
	_, exists := s.users[key]
	s.mu.Unlock()
	if exists {
		return nil, errEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}

	u := &user{
		Subject:      subjectFor(key),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[key]; exists {
		return nil, errEmailTaken
	}
	s.users[key] = u
	return u, nil
}

// subjectFor derives a stable subject from an email.
func subjectFor(email string) string {
	id, err := hashid.NewUUID(strings.ToLower(email))
	if err != nil {
		return strings.ToLower(email)
	}
	return id.String()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
