package gateway

import (
	"context"
	"net/http"
	"time"

	"matchmaker-relay/matchmaker"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Handler receives the lifecycle of every client connection.
type Handler interface {
	OnConnect(id string, s matchmaker.Sender) *matchmaker.Connection
	OnMessage(ctx context.Context, c *matchmaker.Connection, raw []byte) error
	OnDisconnect(c *matchmaker.Connection)
}

// Server upgrades HTTP requests to WebSockets and feeds frames to a Handler,
// one connection per goroutine so frames keep their arrival order.
type Server struct {
	ctx      context.Context
	handler  Handler
	upgrader websocket.Upgrader
}

// New returns a Server whose connections are bound to ctx; cancelling it
// makes in-flight handler calls observe cancellation.
func New(ctx context.Context, h Handler) *Server {
	return &Server{
		ctx:     ctx,
		handler: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("gateway: upgrade failed")
		return
	}
	c := newClient(uuid.NewString(), ws)
	conn := s.handler.OnConnect(c.id, c)
	go c.writeLoop()

	s.readLoop(c, conn)

	s.handler.OnDisconnect(conn)
	c.close()
}

func (s *Server) readLoop(c *client, conn *matchmaker.Connection) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("conn", c.id).Msg("gateway: unexpected close")
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		log.Debug().Str("conn", c.id).Bytes("frame", data).Msg("gateway: received")
		if err := s.handler.OnMessage(s.ctx, conn, data); err != nil {
			log.Warn().Err(err).Str("conn", c.id).Msg("gateway: frame dropped")
		}
	}
}
