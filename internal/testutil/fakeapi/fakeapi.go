// fakeapi - тестовый двойник бэкенда AgriCare на chi.
//
// Повторяет HTTP-контракт бэкенда (auth, ml, chatbot) в памяти процесса:
// access-токены - JWT (HS256), refresh-токены - одноразовые случайные строки,
// пароли хранятся bcrypt-хэшами. Поведение можно переключать из теста:
// истечь все выданные access-токены, задержать или сломать /auth/refresh,
// подменить ответ любого пути.
package fakeapi

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/agricare-client/internal/models"
	"github.com/pribylovaa/agricare-client/internal/pkg/log"
)

// MaxMessages - лимит сообщений в диалоге (как на бэкенде).
const MaxMessages = 5

type user struct {
	id        int64
	email     string
	hash      []byte
	userType  string
	createdAt time.Time
}

type override struct {
	status int
	detail string
}

// Server - запущенный httptest-сервер с состоянием бэкенда.
type Server struct {
	*httptest.Server

	secret    []byte
	accessTTL time.Duration

	mu            sync.Mutex
	users         map[string]*user
	refresh       map[string]int64 // refresh-токен -> user id
	conversations map[int64]*conversation
	nextUserID    int64
	nextConvID    int64
	minGen        int64
	gen           int64
	overrides     map[string]override
	authSeen      map[string][]string

	refreshCalls atomic.Int64
	logoutCalls  atomic.Int64
	failRefresh  atomic.Bool
	refreshGate  chan struct{}
}

type conversation struct {
	models.Conversation
	userID int64
}

type Option func(*Server)

// WithAccessTTL задаёт expires_in выдаваемых токенов (по умолчанию 1 час).
func WithAccessTTL(d time.Duration) Option { return func(s *Server) { s.accessTTL = d } }

// New запускает сервер и останавливает его по завершении теста.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()

	secret := make([]byte, 32)
	_, _ = rand.Read(secret)

	s := &Server{
		secret:        secret,
		accessTTL:     time.Hour,
		users:         make(map[string]*user),
		refresh:       make(map[string]int64),
		conversations: make(map[int64]*conversation),
		overrides:     make(map[string]override),
		authSeen:      make(map[string][]string),
	}
	for _, fn := range opts {
		fn(s)
	}

	s.Server = httptest.NewServer(s.router())
	t.Cleanup(s.Close)

	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	r.Use(recoverer, s.record, s.overridden)

	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/refresh", s.handleRefresh)
	r.Post("/auth/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/auth/logout-all", s.handleLogoutAll)
		r.Get("/auth/me", s.handleMe)
		r.Post("/ml/predict", s.handlePredict)
		r.Post("/chatbot/chat", s.handleChat)
		r.Post("/chatbot/chat/prediction", s.handlePredictionChat)
		r.Get("/chatbot/conversations", s.handleConversations)
		r.Get("/chatbot/conversations/{id}", s.handleConversation)
	})

	return r
}

// AddUser регистрирует пользователя напрямую, минуя HTTP.
func (s *Server) AddUser(email, password string) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextUserID++
	s.users[email] = &user{id: s.nextUserID, email: email, hash: hash, createdAt: time.Now().UTC()}
}

// ExpireAccessTokens делает все ранее выданные access-токены недействительными.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.minGen = s.gen + 1
}

// FailRefresh включает ответ 401 на /auth/refresh.
func (s *Server) FailRefresh(fail bool) { s.failRefresh.Store(fail) }

// HoldRefresh задерживает обработку /auth/refresh до вызова release.
func (s *Server) HoldRefresh() (release func()) {
	gate := make(chan struct{})

	s.mu.Lock()
	s.refreshGate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(gate)
		})
	}
}

// Override отвечает на path статусом status и {"detail": detail} вместо обработчика.
// status == 0 снимает подмену.
func (s *Server) Override(path string, status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if status == 0 {
		delete(s.overrides, path)
		return
	}

	s.overrides[path] = override{status: status, detail: detail}
}

// RefreshCalls - число обращений к /auth/refresh.
func (s *Server) RefreshCalls() int64 { return s.refreshCalls.Load() }

// LogoutCalls - число обращений к /auth/logout.
func (s *Server) LogoutCalls() int64 { return s.logoutCalls.Load() }

// AuthHeaders - значения Authorization, с которыми приходили запросы на path.
func (s *Server) AuthHeaders(path string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.authSeen[path]...)
}

// ActiveRefreshTokens - число неотозванных refresh-токенов.
func (s *Server) ActiveRefreshTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.refresh)
}

// --- middleware ---

func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.From(r.Context()).Error("panic_recovered", slog.Any("panic", rec))
				writeDetail(w, http.StatusInternalServerError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.authSeen[r.URL.Path] = append(s.authSeen[r.URL.Path], r.Header.Get("Authorization"))
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) overridden(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		ov, ok := s.overrides[r.URL.Path]
		s.mu.Unlock()

		if ok {
			writeDetail(w, ov.status, ov.detail)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type ctxKey struct{}

// authenticate проверяет Bearer-токен и кладёт пользователя в контекст.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "

		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, prefix) {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		u, err := s.verifyAccess(strings.TrimSpace(auth[len(prefix):]))
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}

		r = r.WithContext(contextWithUser(r, u))
		next.ServeHTTP(w, r)
	})
}

// --- tokens ---

type accessClaims struct {
	Gen int64 `json:"gen"`
	jwt.RegisteredClaims
}

func (s *Server) issue(u *user) (models.AuthResponse, error) {
	const op = "fakeapi.issue"

	now := time.Now()

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	claims := accessClaims{
		Gen: gen,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}

	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, err)
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	refresh := base64.RawURLEncoding.EncodeToString(b)

	s.mu.Lock()
	s.refresh[refresh] = u.id
	s.mu.Unlock()

	return models.AuthResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.accessTTL / time.Second),
	}, nil
}

var errInvalidToken = errors.New("invalid token")

func (s *Server) verifyAccess(tok string) (*user, error) {
	var claims accessClaims

	_, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if claims.Gen < s.minGen {
		return nil, errInvalidToken
	}

	u, ok := s.users[claims.Subject]
	if !ok {
		return nil, errInvalidToken
	}

	return u, nil
}

func (s *Server) userByID(id int64) *user {
	for _, u := range s.users {
		if u.id == id {
			return u
		}
	}

	return nil
}

// --- helpers ---

func contextWithUser(r *http.Request, u *user) context.Context {
	return context.WithValue(r.Context(), ctxKey{}, u)
}

func userFrom(r *http.Request) *user {
	u, _ := r.Context().Value(ctxKey{}).(*user)
	return u
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return false
	}

	return true
}
