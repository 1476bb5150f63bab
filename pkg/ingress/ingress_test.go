package ingress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cfoust/avalon/pkg/auth"
	"github.com/cfoust/avalon/pkg/commands"
	"github.com/cfoust/avalon/pkg/game"
	"github.com/cfoust/avalon/pkg/rooms"
	"github.com/cfoust/avalon/pkg/state"

	"github.com/fxamacker/cbor/v2"
	"github.com/sasha-s/go-deadlock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

var GENEROUS = Limits{CommandsPerSecond: 100, Burst: 100}

const SECRET = "correct horse battery staple"

func newAuthority(t *testing.T) *auth.Authority {
	authority, err := auth.NewAuthority(SECRET)
	require.NoError(t, err)
	return authority
}

func issue(t *testing.T, authority *auth.Authority, player string) string {
	token, err := authority.Issue(game.PlayerID(player), time.Hour)
	require.NoError(t, err)
	return token
}

type fakeCommander struct {
	mutex    deadlock.Mutex
	received []string
}

func (f *fakeCommander) Handle(ctx context.Context, player game.PlayerID, text string) (string, error) {
	f.mutex.Lock()
	f.received = append(f.received, string(player)+": "+text)
	f.mutex.Unlock()

	if strings.HasPrefix(text, "#nick ") {
		return "ok", nil
	}

	switch text {
	case "#status":
		return "Phase: WAITING", nil
	case "#start":
		return "", game.NewError(game.ErrorPermissionDenied, "only the room owner can start the game")
	case "#explode":
		return "", errors.New("database is gone")
	}
	return "", &commands.UsageError{Message: "unknown command"}
}

func (f *fakeCommander) Received() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]string(nil), f.received...)
}

type fakeRooms map[string][]game.PlayerID

func (f fakeRooms) Load(ctx context.Context, roomID string) (*state.Room, error) {
	players, ok := f[roomID]
	if !ok {
		return nil, state.ErrNotFound
	}

	gameState := game.NewGameState(60)
	gameState.Players = players
	return &state.Room{ID: roomID, State: gameState}, nil
}

func TestDeviceType(t *testing.T) {
	assert.Equal(t, DeviceUnknown, DeviceType(""))
	assert.Equal(t, DeviceMobile, DeviceType("Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1"))
	assert.Equal(t, DeviceDesktop, DeviceType("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/110.0.0.0 Safari/537.36"))
	assert.Equal(t, DeviceBot, DeviceType("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusOK, StatusFor(nil))
	assert.Equal(t, http.StatusConflict, StatusFor(state.ErrConflict))
	assert.Equal(t, http.StatusNotFound, StatusFor(state.ErrNotFound))
	assert.Equal(t, http.StatusForbidden, StatusFor(game.NewError(game.ErrorNotLeader, "no")))
	assert.Equal(t, http.StatusForbidden, StatusFor(game.NewError(game.ErrorPermissionDenied, "no")))
	assert.Equal(t, http.StatusBadRequest, StatusFor(game.NewError(game.ErrorWrongPhase, "no")))
	assert.Equal(t, http.StatusBadRequest, StatusFor(&commands.UsageError{Message: "usage"}))
	assert.Equal(t, http.StatusTooManyRequests, StatusFor(ErrRateLimited))
	assert.Equal(t, http.StatusUnauthorized, StatusFor(fmt.Errorf("%w: expired", auth.ErrUnauthorized)))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))

	assert.Equal(t, "no", PublicMessage(game.NewError(game.ErrorWrongPhase, "no")))
	assert.NotContains(t, PublicMessage(errors.New("password=hunter2")), "hunter2")
}

func postCommand(t *testing.T, handler http.Handler, token string, text string) (int, CommandResponse) {
	body, err := json.Marshal(CommandRequest{Text: text})
	require.NoError(t, err)

	request := httptest.NewRequest(http.MethodPost, "/api/command", bytes.NewReader(body))
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	var response CommandResponse
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&response))
	return recorder.Code, response
}

func TestAPI(t *testing.T) {
	commander := &fakeCommander{}
	authority := newAuthority(t)
	server := NewServer(
		NewWSIngress(commander, fakeRooms{}, authority, GENEROUS),
		NewAPI(commander, authority, Limits{CommandsPerSecond: 0.001, Burst: 2}),
	)
	alice := issue(t, authority, "alice")
	bob := issue(t, authority, "bob")
	handler := server.Handler()

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"message":"pong"}`, recorder.Body.String())

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/nothing", nil))
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/command", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)

	recorder = httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/api/command", strings.NewReader("{"))
	request.Header.Set("Authorization", "Bearer "+alice)
	handler.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	code, response := postCommand(t, handler, alice, "#status")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Phase: WAITING", response.Reply)

	code, response = postCommand(t, handler, alice, "#start")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "only the room owner can start the game", response.Error)

	// Burst of two is spent
	code, _ = postCommand(t, handler, alice, "#status")
	assert.Equal(t, http.StatusTooManyRequests, code)

	// Other players have their own allowance
	code, response = postCommand(t, handler, bob, "#explode")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.NotContains(t, response.Error, "database")
}

func TestAPIRequiresToken(t *testing.T) {
	commander := &fakeCommander{}
	authority := newAuthority(t)
	handler := NewAPI(commander, authority, GENEROUS)

	code, response := postCommand(t, handler, "", "#status")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.NotEmpty(t, response.Error)

	forger, err := auth.NewAuthority("some other secret entirely")
	require.NoError(t, err)
	code, _ = postCommand(t, handler, issue(t, forger, "alice"), "#status")
	assert.Equal(t, http.StatusUnauthorized, code)

	// A player field in the body is not an identity
	request := httptest.NewRequest(
		http.MethodPost,
		"/api/command",
		strings.NewReader(`{"player": "alice", "text": "#status"}`),
	)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	code, _ = postCommand(t, handler, issue(t, authority, "alice"), "#status")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"alice: #status"}, commander.Received())
}

func TestAPILimiterBound(t *testing.T) {
	authority := newAuthority(t)
	api := NewAPI(&fakeCommander{}, authority, Limits{CommandsPerSecond: 0.001, Burst: 1})
	api.maxLimiters = 2

	now := time.Unix(1000, 0)
	api.now = func() time.Time { return now }

	alice := api.limiter("alice")
	assert.True(t, alice.Allow())
	now = now.Add(time.Second)
	api.limiter("bob")
	now = now.Add(time.Second)

	// Table is full, so the least recently seen player makes room
	api.limiter("carol")
	assert.Len(t, api.limiters, 2)
	assert.NotContains(t, api.limiters, game.PlayerID("alice"))
	assert.Contains(t, api.limiters, game.PlayerID("bob"))

	// Idle entries all go at once
	now = now.Add(LIMITER_IDLE + time.Minute)
	api.limiter("dave")
	assert.Len(t, api.limiters, 1)
	assert.Contains(t, api.limiters, game.PlayerID("dave"))

	// Players still in the table keep their spent allowance
	assert.True(t, api.limiter("dave").Allow())
	assert.False(t, api.limiter("dave").Allow())
}

type wsTest struct {
	t         *testing.T
	ctx       context.Context
	authority *auth.Authority
	ingress   *WSIngress
	server    *httptest.Server
}

func newWSTest(t *testing.T, commander Commander, loader RoomLoader, limits Limits) *wsTest {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	authority := newAuthority(t)
	ingress := NewWSIngress(commander, loader, authority, limits)
	server := httptest.NewServer(NewServer(ingress, NewAPI(commander, authority, limits)).Handler())
	t.Cleanup(server.Close)

	return &wsTest{t: t, ctx: ctx, authority: authority, ingress: ingress, server: server}
}

func (w *wsTest) dial() *websocket.Conn {
	url := "ws" + strings.TrimPrefix(w.server.URL, "http") + "/ws/"
	c, _, err := websocket.Dial(w.ctx, url, nil)
	require.NoError(w.t, err)
	w.t.Cleanup(func() {
		c.Close(websocket.StatusNormalClosure, "")
	})
	return c
}

func (w *wsTest) send(c *websocket.Conn, message Message) {
	data, err := cbor.Marshal(message)
	require.NoError(w.t, err)
	require.NoError(w.t, c.Write(w.ctx, websocket.MessageBinary, data))
}

func (w *wsTest) recv(c *websocket.Conn) Message {
	typ, data, err := c.Read(w.ctx)
	require.NoError(w.t, err)
	require.Equal(w.t, websocket.MessageBinary, typ)

	var message Message
	require.NoError(w.t, cbor.Unmarshal(data, &message))
	return message
}

func (w *wsTest) hello(c *websocket.Conn, player string, nickname string) {
	w.send(c, Message{
		Op:       HelloOp,
		Player:   player,
		Nickname: nickname,
		Token:    issue(w.t, w.authority, player),
	})
	welcome := w.recv(c)
	require.Equal(w.t, WelcomeOp, welcome.Op)
	require.Equal(w.t, player, welcome.Player)
}

func TestWebsocketCommands(t *testing.T) {
	commander := &fakeCommander{}
	test := newWSTest(t, commander, fakeRooms{}, GENEROUS)
	c := test.dial()

	test.send(c, Message{Op: CommandOp, Id: 1, Text: "#status"})
	message := test.recv(c)
	assert.Equal(t, ErrorOp, message.Op)
	assert.Equal(t, 1, message.Id)

	test.send(c, Message{Op: HelloOp})
	assert.Equal(t, ErrorOp, test.recv(c).Op)

	test.hello(c, "alice", "Alice")

	test.send(c, Message{Op: CommandOp, Id: 2, Text: "#status"})
	message = test.recv(c)
	assert.Equal(t, Message{Op: ReplyOp, Id: 2, Text: "Phase: WAITING"}, message)

	test.send(c, Message{Op: CommandOp, Id: 3, Text: "#start"})
	message = test.recv(c)
	assert.Equal(t, ErrorOp, message.Op)
	assert.Equal(t, 3, message.Id)
	assert.Equal(t, "only the room owner can start the game", message.Text)

	test.send(c, Message{Op: "dance"})
	assert.Equal(t, ErrorOp, test.recv(c).Op)

	received := commander.Received()
	assert.Equal(t, []string{
		"alice: #nick Alice",
		"alice: #status",
		"alice: #start",
	}, received)
}

func TestWebsocketIdentity(t *testing.T) {
	commander := &fakeCommander{}
	test := newWSTest(t, commander, fakeRooms{}, GENEROUS)

	alice := test.dial()
	test.hello(alice, "alice", "")

	// Claiming alice without her token gets nowhere
	mallory := test.dial()
	test.send(mallory, Message{Op: HelloOp, Player: "alice"})
	assert.Equal(t, ErrorOp, test.recv(mallory).Op)

	forger, err := auth.NewAuthority("some other secret entirely")
	require.NoError(t, err)
	test.send(mallory, Message{Op: HelloOp, Player: "alice", Token: issue(t, forger, "alice")})
	assert.Equal(t, ErrorOp, test.recv(mallory).Op)

	test.send(mallory, Message{Op: CommandOp, Id: 1, Text: "#status"})
	message := test.recv(mallory)
	assert.Equal(t, ErrorOp, message.Op)
	assert.Equal(t, "send hello first", message.Text)

	// A valid token for someone else cannot be relabelled
	test.send(mallory, Message{Op: HelloOp, Player: "alice", Token: issue(t, test.authority, "mallory")})
	message = test.recv(mallory)
	assert.Equal(t, ErrorOp, message.Op)
	assert.Equal(t, "token was issued to someone else", message.Text)

	// Her own token works, and the connection stays hers
	test.hello(mallory, "mallory", "")
	test.send(mallory, Message{Op: HelloOp, Token: issue(t, test.authority, "alice")})
	message = test.recv(mallory)
	assert.Equal(t, ErrorOp, message.Op)
	assert.Equal(t, "this connection is already signed in", message.Text)

	test.send(mallory, Message{Op: CommandOp, Id: 2, Text: "#status"})
	assert.Equal(t, ReplyOp, test.recv(mallory).Op)

	assert.Equal(t, []string{"mallory: #status"}, commander.Received())
}

func TestWebsocketRateLimit(t *testing.T) {
	test := newWSTest(t, &fakeCommander{}, fakeRooms{}, Limits{CommandsPerSecond: 0.001, Burst: 1})
	c := test.dial()
	test.hello(c, "alice", "")

	test.send(c, Message{Op: CommandOp, Id: 1, Text: "#status"})
	assert.Equal(t, ReplyOp, test.recv(c).Op)

	test.send(c, Message{Op: CommandOp, Id: 2, Text: "#status"})
	message := test.recv(c)
	assert.Equal(t, ErrorOp, message.Op)
	assert.Equal(t, ErrRateLimited.Error(), message.Text)
}

func TestWebsocketEvents(t *testing.T) {
	test := newWSTest(t, &fakeCommander{}, fakeRooms{
		"1234": {"alice", "bob"},
	}, GENEROUS)

	alice := test.dial()
	test.hello(alice, "alice", "")
	bob := test.dial()
	test.hello(bob, "bob", "")
	carol := test.dial()
	test.hello(carol, "carol", "")

	// Whispers only reach their recipient
	test.ingress.Dispatch(test.ctx, rooms.RoomEvent{
		Room:       "1234",
		Recipients: []game.PlayerID{"bob"},
		Text:       "you are Merlin",
	})
	assert.Equal(t, Message{Op: EventOp, Room: "1234", Text: "you are Merlin"}, test.recv(bob))

	// Announcements reach everyone seated in the room
	test.ingress.Dispatch(test.ctx, rooms.RoomEvent{
		Room: "1234",
		Text: "the game has started",
	})
	assert.Equal(t, "the game has started", test.recv(alice).Text)
	assert.Equal(t, "the game has started", test.recv(bob).Text)

	// Carol got nothing; her next frame is the reply to this
	test.send(carol, Message{Op: CommandOp, Id: 9, Text: "#status"})
	assert.Equal(t, 9, test.recv(carol).Id)

	// Unknown rooms are ignored
	test.ingress.Dispatch(test.ctx, rooms.RoomEvent{Room: "0000", Text: "hello?"})
}

func TestServerListen(t *testing.T) {
	commander := &fakeCommander{}
	server := NewServer(
		NewWSIngress(commander, fakeRooms{}, newAuthority(t), GENEROUS),
		NewAPI(commander, newAuthority(t), GENEROUS),
	)

	assert.Error(t, server.Serve())
	assert.NoError(t, server.Shutdown(context.Background()))

	require.NoError(t, server.Listen(context.Background(), 0))

	errc := make(chan error, 1)
	go func() {
		errc <- server.Serve()
	}()

	port := server.listener.Addr().(*net.TCPAddr).Port
	response, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/api/ping", port))
	require.NoError(t, err)
	response.Body.Close()
	assert.Equal(t, http.StatusOK, response.StatusCode)

	require.NoError(t, server.Shutdown(context.Background()))
	assert.ErrorIs(t, <-errc, http.ErrServerClosed)
}
