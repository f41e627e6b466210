package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/memorygame/internal/auth"
	"github.com/jason-s-yu/memorygame/internal/database"
	"github.com/jason-s-yu/memorygame/internal/game"
	"github.com/jason-s-yu/memorygame/internal/models"
	"github.com/jason-s-yu/memorygame/internal/results"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[uuid.UUID]*models.User)}
}

func (f *fakeUserStore) CreateUser(ctx context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if u.Email != "" && existing.Email == u.Email {
			return fmt.Errorf("failed to insert user: %w", database.ErrDuplicate)
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeUserStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserStore) ClaimEphemeralUser(ctx context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.users[u.ID]
	if !ok || !existing.IsEphemeral {
		return pgx.ErrNoRows
	}
	u.IsEphemeral = false
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeUserStore) AuthenticateUser(ctx context.Context, email, password string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email && u.Password == password {
			return auth.CreateJWT(u.ID.String())
		}
	}
	return "", errors.New("invalid credentials")
}

func (f *fakeUserStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

type fakeLister struct {
	mu      sync.Mutex
	results []models.GameResult
	err     error
}

func (f *fakeLister) ListResults(ctx context.Context, limit int) ([]models.GameResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := append([]models.GameResult(nil), f.results...)
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeLister) set(results ...models.GameResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = results
}

type testServer struct {
	srv    *GameServer
	users  *fakeUserStore
	lister *fakeLister
	router http.Handler
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	require.NoError(t, auth.Init(time.Hour))
	logger, _ := test.NewNullLogger()

	ts := &testServer{
		users:  newFakeUserStore(),
		lister: &fakeLister{},
	}
	ts.srv = NewGameServer(logger)
	ts.srv.Users = ts.users
	ts.srv.Board = results.NewBoard(ts.lister, 50, time.UTC, logger)
	ts.router = NewRouter(logger, ts.srv)
	return ts
}

// registerPlayer stores a user and returns a cookie for it.
func (ts *testServer) registerPlayer(t *testing.T) (uuid.UUID, *http.Cookie) {
	t.Helper()
	u := &models.User{Username: "ada"}
	require.NoError(t, ts.users.CreateUser(context.Background(), u))
	token, err := auth.CreateJWT(u.ID.String())
	require.NoError(t, err)
	return u.ID, &http.Cookie{Name: authCookieName, Value: token}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func authCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == authCookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", authCookieName)
	return nil
}

func TestCreateGameIssuesGuest(t *testing.T) {
	ts := setupServer(t)

	w := ts.do(httptest.NewRequest(http.MethodPost, "/game/create", nil))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp createGameResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEqual(t, uuid.Nil, resp.GameID)
	assert.Len(t, resp.State.Cards, game.DeckSize)
	for _, c := range resp.State.Cards {
		assert.Empty(t, c.Kind, "face-down cards must not reveal their kind")
	}

	playerID, err := auth.PlayerIDFromToken(authCookie(t, w).Value)
	require.NoError(t, err)
	assert.Equal(t, playerID, resp.State.PlayerID)
	assert.Equal(t, 1, ts.users.count())

	g, ok := ts.srv.GameStore.GetGame(resp.GameID)
	require.True(t, ok)
	t.Cleanup(func() { ts.srv.DropGame(g.ID) })
	assert.Equal(t, game.DefaultPacing(), g.Pacing)
}

func TestCreateGameReusesPlayer(t *testing.T) {
	ts := setupServer(t)
	playerID, cookie := ts.registerPlayer(t)

	req := httptest.NewRequest(http.MethodPost, "/game/create", strings.NewReader(`{"revealDelayMs":250}`))
	req.AddCookie(cookie)
	w := ts.do(req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp createGameResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, playerID, resp.State.PlayerID)
	assert.Equal(t, 1, ts.users.count(), "no guest for a known player")

	g, ok := ts.srv.GameStore.GetGame(resp.GameID)
	require.True(t, ok)
	t.Cleanup(func() { ts.srv.DropGame(g.ID) })
	assert.Equal(t, 250*time.Millisecond, g.Pacing.RevealDelay)
	assert.Equal(t, 2*time.Second, g.Pacing.WinDelay)
}

func TestCreateGameKeepsServerClock(t *testing.T) {
	ts := setupServer(t)
	ts.srv.Pacing.TickInterval = 500 * time.Millisecond

	body := `{"tickIntervalMs":3600000,"revealDelayMs":0,"winDelayMs":0}`
	w := ts.do(httptest.NewRequest(http.MethodPost, "/game/create", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp createGameResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	g, ok := ts.srv.GameStore.GetGame(resp.GameID)
	require.True(t, ok)
	t.Cleanup(func() { ts.srv.DropGame(g.ID) })

	assert.Equal(t, 500*time.Millisecond, g.Pacing.TickInterval)
	assert.Equal(t, time.Duration(0), g.Pacing.RevealDelay)
	assert.Equal(t, time.Duration(0), g.Pacing.WinDelay)
}

func TestCreateGameRejectsBadPacing(t *testing.T) {
	ts := setupServer(t)

	w := ts.do(httptest.NewRequest(http.MethodPost, "/game/create", strings.NewReader(`{"revealDelayMs":-5}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(httptest.NewRequest(http.MethodPost, "/game/create", strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, ts.srv.GameStore.Count())
}

func TestGetGame(t *testing.T) {
	ts := setupServer(t)
	playerID, cookie := ts.registerPlayer(t)
	g := ts.srv.NewGame(playerID, game.DefaultPacing())
	t.Cleanup(func() { ts.srv.DropGame(g.ID) })

	req := httptest.NewRequest(http.MethodGet, "/game/"+g.ID.String(), nil)
	req.AddCookie(cookie)
	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var snap game.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, g.ID, snap.GameID)
	assert.Equal(t, game.PhaseIdle, snap.Phase)

	t.Run("no token", func(t *testing.T) {
		w := ts.do(httptest.NewRequest(http.MethodGet, "/game/"+g.ID.String(), nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
	t.Run("other player", func(t *testing.T) {
		_, other := ts.registerPlayer(t)
		req := httptest.NewRequest(http.MethodGet, "/game/"+g.ID.String(), nil)
		req.AddCookie(other)
		assert.Equal(t, http.StatusForbidden, ts.do(req).Code)
	})
	t.Run("unknown game", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/game/"+uuid.NewString(), nil)
		req.AddCookie(cookie)
		assert.Equal(t, http.StatusNotFound, ts.do(req).Code)
	})
	t.Run("bad id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/game/not-a-uuid", nil)
		req.AddCookie(cookie)
		assert.Equal(t, http.StatusBadRequest, ts.do(req).Code)
	})
}

func TestResultsEndpoint(t *testing.T) {
	ts := setupServer(t)
	done := time.Date(2025, time.January, 2, 15, 4, 5, 0, time.UTC)
	ts.lister.set(
		models.GameResult{PlayerName: "ada", Seconds: 42, Moves: 8, CompletedOn: done},
		models.GameResult{PlayerName: "bob", Seconds: 61, Moves: 11, CompletedOn: done},
	)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/results", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var rows []models.ResultRow
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, models.ResultRow{
		Player:      "ada",
		Time:        "00:00:42",
		Moves:       8,
		CompletedOn: "January 02, 2025, 03:04:05 PM",
	}, rows[0])

	w = ts.do(httptest.NewRequest(http.MethodGet, "/results?limit=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	assert.Len(t, rows, 1)

	w = ts.do(httptest.NewRequest(http.MethodGet, "/results?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResultsEndpointEmptyIsArray(t *testing.T) {
	ts := setupServer(t)
	w := ts.do(httptest.NewRequest(http.MethodGet, "/results", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestResultsEndpointStoreDown(t *testing.T) {
	ts := setupServer(t)
	ts.lister.err = errors.New("connection refused")
	w := ts.do(httptest.NewRequest(http.MethodGet, "/results", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCreateUserAndLogin(t *testing.T) {
	ts := setupServer(t)

	body := `{"email":"ada@example.com","password":"correct horse","username":"ada"}`
	w := ts.do(httptest.NewRequest(http.MethodPost, "/user/create", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Empty(t, created.Password)
	authCookie(t, w)

	w = ts.do(httptest.NewRequest(http.MethodPost, "/user/create", strings.NewReader(body)))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(httptest.NewRequest(http.MethodPost, "/user/create", strings.NewReader(`{"email":"x","password":"short"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	login := `{"email":"ada@example.com","password":"correct horse"}`
	w = ts.do(httptest.NewRequest(http.MethodPost, "/user/login", strings.NewReader(login)))
	require.Equal(t, http.StatusOK, w.Code)
	var resp loginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	id, err := auth.PlayerIDFromToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, created.ID, id)

	w = ts.do(httptest.NewRequest(http.MethodPost, "/user/login", strings.NewReader(`{"email":"ada@example.com","password":"wrong"}`)))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestClaimGuest(t *testing.T) {
	ts := setupServer(t)

	w := ts.do(httptest.NewRequest(http.MethodPost, "/game/create", nil))
	require.Equal(t, http.StatusCreated, w.Code)
	cookie := authCookie(t, w)
	var resp createGameResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	t.Cleanup(func() { ts.srv.DropGame(resp.GameID) })

	body := bytes.NewBufferString(`{"email":"guest@example.com","password":"long enough","username":"grace"}`)
	req := httptest.NewRequest(http.MethodPost, "/user/claim", body)
	req.AddCookie(cookie)
	w = ts.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	u, err := ts.users.GetUserByID(context.Background(), resp.State.PlayerID)
	require.NoError(t, err)
	assert.False(t, u.IsEphemeral)
	assert.Equal(t, "grace", u.Username)

	req = httptest.NewRequest(http.MethodPost, "/user/claim", strings.NewReader(`{"email":"again@example.com","password":"long enough"}`))
	req.AddCookie(cookie)
	assert.Equal(t, http.StatusBadRequest, ts.do(req).Code, "already claimed")
}
