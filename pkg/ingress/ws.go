package ingress

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cfoust/avalon/pkg/game"
	"github.com/cfoust/avalon/pkg/rooms"
	"github.com/cfoust/avalon/pkg/utils"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
)

type WSClient struct {
	mutex     deadlock.Mutex
	player    game.PlayerID
	host      string
	device    string
	send      chan []byte
	limiter   *rate.Limiter
	closeSlow func()
}

func NewWSClient(host string, device string, limits Limits) *WSClient {
	return &WSClient{
		host:      host,
		device:    device,
		send:      make(chan []byte, CLIENT_MESSAGE_LIMIT),
		limiter:   limits.NewLimiter(),
		closeSlow: func() {},
	}
}

func (c *WSClient) Player() game.PlayerID {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.player
}

func (c *WSClient) setPlayer(player game.PlayerID) {
	c.mutex.Lock()
	c.player = player
	c.mutex.Unlock()
}

func (c *WSClient) Host() string {
	return c.host
}

func (c *WSClient) DeviceType() string {
	return c.device
}

// Queue schedules a message for the client. Clients that fall too far
// behind are disconnected.
func (c *WSClient) Queue(message Message) {
	bytes, err := cbor.Marshal(message)
	if err != nil {
		log.Error().Err(err).Msg("could not encode message")
		return
	}

	select {
	case c.send <- bytes:
	default:
		go c.closeSlow()
	}
}

type WSIngress struct {
	commander Commander
	rooms     RoomLoader
	verifier  Verifier
	limits    Limits
	clients   map[*WSClient]struct{}
	mutex     deadlock.Mutex
}

func NewWSIngress(commander Commander, rooms RoomLoader, verifier Verifier, limits Limits) *WSIngress {
	return &WSIngress{
		commander: commander,
		rooms:     rooms,
		verifier:  verifier,
		limits:    limits,
		clients:   make(map[*WSClient]struct{}),
	}
}

func WriteTimeout(ctx context.Context, timeout time.Duration, c *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Write(ctx, websocket.MessageBinary, msg)
}

func (server *WSIngress) AddClient(s *WSClient) {
	server.mutex.Lock()
	server.clients[s] = struct{}{}
	server.mutex.Unlock()
}

func (server *WSIngress) RemoveClient(client *WSClient) {
	server.mutex.Lock()
	delete(server.clients, client)
	server.mutex.Unlock()
}

func (server *WSIngress) clientsFor(players []game.PlayerID) []*WSClient {
	wanted := make(map[game.PlayerID]struct{}, len(players))
	for _, player := range players {
		wanted[player] = struct{}{}
	}

	server.mutex.Lock()
	defer server.mutex.Unlock()

	matched := make([]*WSClient, 0)
	for client := range server.clients {
		if _, ok := wanted[client.Player()]; ok {
			matched = append(matched, client)
		}
	}
	return matched
}

// Dispatch sends a room event to the connected players it is meant for.
func (server *WSIngress) Dispatch(ctx context.Context, event rooms.RoomEvent) {
	recipients := event.Recipients
	if len(recipients) == 0 {
		room, err := server.rooms.Load(ctx, event.Room)
		if err != nil {
			log.Warn().Err(err).Str("room", event.Room).Msg("could not load room for event")
			return
		}
		recipients = room.State.Players
	}

	message := Message{
		Op:   EventOp,
		Room: event.Room,
		Text: event.Text,
	}
	for _, client := range server.clientsFor(recipients) {
		client.Queue(message)
	}
}

// Poll forwards room events to clients until the context ends.
func (server *WSIngress) Poll(ctx context.Context, events *utils.Subscriber[rooms.RoomEvent]) {
	defer events.Done()

	for {
		select {
		case event := <-events.Recv():
			server.Dispatch(ctx, event)
		case <-ctx.Done():
			return
		}
	}
}

func (server *WSIngress) handleMessage(ctx context.Context, client *WSClient, data []byte, logger zerolog.Logger) {
	var message Message
	if err := cbor.Unmarshal(data, &message); err != nil {
		client.Queue(Message{Op: ErrorOp, Text: "malformed message"})
		return
	}

	switch message.Op {
	case HelloOp:
		player, err := server.verifier.Verify(message.Token)
		if err != nil {
			logger.Warn().Err(err).Msg("client failed to authenticate")
			client.Queue(Message{Op: ErrorOp, Text: PublicMessage(err)})
			return
		}

		if message.Player != "" && game.PlayerID(message.Player) != player {
			client.Queue(Message{Op: ErrorOp, Text: "token was issued to someone else"})
			return
		}

		current := client.Player()
		if current != "" && current != player {
			client.Queue(Message{Op: ErrorOp, Text: "this connection is already signed in"})
			return
		}

		client.setPlayer(player)
		logger.Info().Str("player", string(player)).Msg("client identified")

		if message.Nickname != "" {
			_, err := server.commander.Handle(ctx, player, "#nick "+message.Nickname)
			if err != nil {
				client.Queue(Message{Op: ErrorOp, Text: PublicMessage(err)})
			}
		}

		client.Queue(Message{Op: WelcomeOp, Player: string(player)})
	case CommandOp:
		player := client.Player()
		if player == "" {
			client.Queue(Message{Op: ErrorOp, Id: message.Id, Text: "send hello first"})
			return
		}

		if !client.limiter.Allow() {
			client.Queue(Message{Op: ErrorOp, Id: message.Id, Text: ErrRateLimited.Error()})
			return
		}

		// Go run a command, but don't block
		go func() {
			reply, err := server.commander.Handle(ctx, player, message.Text)
			if err != nil {
				if StatusFor(err) == http.StatusInternalServerError {
					logger.Error().Err(err).Str("command", message.Text).Msg("command failed")
				}
				client.Queue(Message{Op: ErrorOp, Id: message.Id, Text: PublicMessage(err)})
				return
			}
			client.Queue(Message{Op: ReplyOp, Id: message.Id, Text: reply})
		}()
	default:
		client.Queue(Message{Op: ErrorOp, Id: message.Id, Text: "unknown op"})
	}
}

func (server *WSIngress) HandleClient(ctx context.Context, c *websocket.Conn, host string, device string) error {
	client := NewWSClient(host, device, server.limits)
	client.closeSlow = func() {
		c.Close(websocket.StatusPolicyViolation, "connection too slow to keep up with messages")
	}

	server.AddClient(client)
	defer server.RemoveClient(client)

	logger := log.With().Str("host", host).Str("device", device).Logger()
	logger.Info().Msg("client joined")

	receive := make(chan []byte)
	errc := make(chan error, 1)

	go func() {
		for {
			typ, message, err := c.Read(ctx)
			if err != nil {
				errc <- err
				return
			}

			if typ != websocket.MessageBinary {
				continue
			}

			select {
			case receive <- message:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case msg := <-receive:
			server.handleMessage(ctx, client, msg, logger)
		case msg := <-client.send:
			err := WriteTimeout(ctx, time.Second*5, c, msg)
			if err != nil {
				logger.Error().Msg("client missed write timeout; disconnecting")
				return err
			}
		case err := <-errc:
			logger.Info().Msg("client left")
			return err
		case <-ctx.Done():
			logger.Info().Msg("client left")
			return ctx.Err()
		}
	}
}

func (server *WSIngress) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})

	if err != nil {
		log.Error().Err(err).Msg("error accepting client connection")
		return
	}

	defer c.Close(websocket.StatusInternalError, "operational fault during relay")

	// We use nginx for ingress everywhere, so check this first
	hostname := r.RemoteAddr

	original, ok := r.Header["X-Forwarded-For"]
	if ok {
		hostname = original[0]
	}

	err = server.HandleClient(r.Context(), c, hostname, DeviceType(r.UserAgent()))
	if errors.Is(err, context.Canceled) {
		return
	}
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
		websocket.CloseStatus(err) == websocket.StatusGoingAway {
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("client connection failed")
		return
	}
}
