package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/memorygame/internal/game"
	"github.com/jason-s-yu/memorygame/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsEnvelope struct {
	Type    string             `json:"type"`
	Message string             `json:"message"`
	Card    *game.EventCard    `json:"card"`
	State   *game.Snapshot     `json:"state"`
	Results []models.ResultRow `json:"results"`
}

func dial(t *testing.T, ctx context.Context, base, path string, cookie *http.Cookie, subprotocols ...string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	if cookie != nil {
		header.Set("Cookie", cookie.String())
	}
	c, _, err := websocket.Dial(ctx, base+path, &websocket.DialOptions{
		Subprotocols: subprotocols,
		HTTPHeader:   header,
	})
	require.NoError(t, err)
	return c
}

func send(t *testing.T, ctx context.Context, c *websocket.Conn, msg string) {
	t.Helper()
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(msg)))
}

// readType skips messages until one of the given type arrives.
func readType(t *testing.T, ctx context.Context, c *websocket.Conn, typ string) wsEnvelope {
	t.Helper()
	for {
		_, data, err := c.Read(ctx)
		require.NoError(t, err, "waiting for %q", typ)
		var env wsEnvelope
		require.NoError(t, json.Unmarshal(data, &env))
		if env.Type == typ {
			return env
		}
	}
}

func TestGameSocketPlaysAndDropsGame(t *testing.T) {
	ts := setupServer(t)
	httpSrv := httptest.NewServer(ts.router)
	defer httpSrv.Close()

	playerID, cookie := ts.registerPlayer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := dial(t, ctx, httpSrv.URL, "/game/ws", cookie, "game")
	defer c.CloseNow()

	state := readType(t, ctx, c, string(game.EventGameState))
	require.NotNil(t, state.State)
	assert.Equal(t, playerID, state.State.PlayerID)
	assert.Equal(t, 1, ts.srv.GameStore.Count())

	send(t, ctx, c, `{"type":"ping"}`)
	readType(t, ctx, c, "pong")

	send(t, ctx, c, `{"type":"flip","card":{"id":1,"kind":"bug"}}`)
	flipped := readType(t, ctx, c, string(game.EventCardFlipped))
	require.NotNil(t, flipped.Card)
	assert.Equal(t, 1, flipped.Card.ID)
	assert.NotEmpty(t, flipped.Card.Kind)

	send(t, ctx, c, `{"type":"flip","card":{"id":1}}`)
	errMsg := readType(t, ctx, c, "error")
	assert.Equal(t, game.ErrCardFaceUp.Error(), errMsg.Message)

	send(t, ctx, c, `{"type":"dance"}`)
	errMsg = readType(t, ctx, c, "error")
	assert.Equal(t, game.ErrUnknownAction.Error(), errMsg.Message)

	require.NoError(t, c.Close(websocket.StatusNormalClosure, ""))
	assert.Eventually(t, func() bool { return ts.srv.GameStore.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestGameSocketAttachesToCreatedGame(t *testing.T) {
	ts := setupServer(t)
	httpSrv := httptest.NewServer(ts.router)
	defer httpSrv.Close()

	playerID, cookie := ts.registerPlayer(t)
	g := ts.srv.NewGame(playerID, game.DefaultPacing())
	t.Cleanup(func() { ts.srv.DropGame(g.ID) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := dial(t, ctx, httpSrv.URL, "/game/ws/"+g.ID.String(), cookie, "game")
	defer c.CloseNow()

	state := readType(t, ctx, c, string(game.EventGameState))
	assert.Equal(t, g.ID, state.State.GameID)
}

func TestGameSocketCloseCodes(t *testing.T) {
	ts := setupServer(t)
	httpSrv := httptest.NewServer(ts.router)
	defer httpSrv.Close()

	playerID, cookie := ts.registerPlayer(t)
	g := ts.srv.NewGame(playerID, game.DefaultPacing())
	t.Cleanup(func() { ts.srv.DropGame(g.ID) })
	_, otherCookie := ts.registerPlayer(t)

	cases := []struct {
		name         string
		path         string
		cookie       *http.Cookie
		subprotocols []string
		want         websocket.StatusCode
	}{
		{"missing subprotocol", "/game/ws/" + g.ID.String(), cookie, nil, BadSubprotocolError},
		{"unknown game", "/game/ws/" + uuid.NewString(), cookie, []string{"game"}, InvalidGameIDError},
		{"malformed game id", "/game/ws/nope", cookie, []string{"game"}, InvalidGameIDError},
		{"other player", "/game/ws/" + g.ID.String(), otherCookie, []string{"game"}, NotGameOwnerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			c := dial(t, ctx, httpSrv.URL, tc.path, tc.cookie, tc.subprotocols...)
			defer c.CloseNow()

			_, _, err := c.Read(ctx)
			require.Error(t, err)
			assert.Equal(t, tc.want, websocket.CloseStatus(err))
		})
	}
	_, ok := ts.srv.GameStore.GetGame(g.ID)
	assert.True(t, ok, "rejected sockets must not drop the game")
}

func TestResultsSocketPushesRefresh(t *testing.T) {
	ts := setupServer(t)
	httpSrv := httptest.NewServer(ts.router)
	defer httpSrv.Close()

	done := time.Date(2025, time.January, 2, 15, 4, 5, 0, time.UTC)
	ada := models.GameResult{PlayerName: "ada", Seconds: 42, Moves: 8, CompletedOn: done}
	ts.lister.set(ada)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := dial(t, ctx, httpSrv.URL, "/results/ws", nil)
	defer c.CloseNow()

	first := readType(t, ctx, c, "results")
	require.Len(t, first.Results, 1)
	assert.Equal(t, "00:00:42", first.Results[0].Time)

	require.Eventually(t, func() bool { return ts.srv.Board.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	ts.lister.set(ada, models.GameResult{PlayerName: "bob", Seconds: 50, Moves: 9, CompletedOn: done})
	_, err := ts.srv.Board.Refresh(ctx)
	require.NoError(t, err)

	second := readType(t, ctx, c, "results")
	require.Len(t, second.Results, 2)
	assert.True(t, strings.HasPrefix(second.Results[1].CompletedOn, "January 02, 2025"))
}
