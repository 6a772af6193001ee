package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	wsadapter "github.com/dkeye/Relay/internal/adapters/ws"
	"github.com/dkeye/Relay/internal/app/lobby"
	"github.com/dkeye/Relay/internal/app/session"
	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/domain"
)

// Handler serves the chat endpoints and keeps track of the sessions it
// started so shutdown can wait for them.
type Handler struct {
	cfg      *config.Config
	lobby    *lobby.Lobby
	limiter  *JoinRateLimiter
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader

	sessions conc.WaitGroup
}

func NewHandler(cfg *config.Config, l *lobby.Lobby, gatherer prometheus.Gatherer) *Handler {
	return &Handler{
		cfg:      cfg,
		lobby:    l,
		limiter:  NewJoinRateLimiter(cfg.JoinRateLimit, cfg.JoinRateInterval),
		gatherer: gatherer,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Wait blocks until every session started by HandleJoin has finished.
func (h *Handler) Wait() {
	h.sessions.Wait()
}

// HandleJoin upgrades the request and runs a session for the room in the path.
func (h *Handler) HandleJoin(ctx context.Context, c *gin.Context) {
	token := c.GetString(clientTokenCtx)
	room, err := domain.ParseRoomID(c.Param("room"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.limiter.Allow(rateKey(c)) {
		log.Warn().Str("module", "adapters.http").Str("client", token).Msg("join rate limited")
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connection attempts"})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("ws upgrade")
		return
	}

	logger := log.With().Str("client", token).Logger()
	conn := wsadapter.NewConn(ws, wsadapter.Options{
		WriteWait:  h.cfg.WriteWait,
		ReadLimit:  h.cfg.ReadLimit,
		SendBuffer: h.cfg.SendBuffer,
		Logger:     &logger,
	})
	sess := session.New(room, h.lobby, conn, session.Config{
		HeartbeatInterval: h.cfg.HeartbeatInterval,
		ClientTimeout:     h.cfg.ClientTimeout,
		JoinTimeout:       h.cfg.JoinTimeout,
		LeaveTimeout:      h.cfg.LeaveTimeout,
		MailboxSize:       h.cfg.MailboxSize,
		Logger:            &logger,
	})
	log.Info().Str("module", "adapters.http").Str("client", token).Str("sid", string(sess.ID())).Str("room", string(room)).Msg("new WS connection")

	// The session closes the connection itself, so the pumps do not follow
	// server cancellation; that leaves room for the going-away close frame.
	h.sessions.Go(func() { conn.Run(context.WithoutCancel(ctx)) })
	h.sessions.Go(func() { _ = sess.Run(ctx) })
}

// rateKey prefers the client token; clients that never returned the cookie
// would get a new token per request, so they are limited by address instead.
func rateKey(c *gin.Context) string {
	if c.GetBool(clientTokenFresh) {
		return "ip:" + c.ClientIP()
	}
	return "ct:" + c.GetString(clientTokenCtx)
}

func (h *Handler) ListRooms(c *gin.Context) {
	rooms, err := h.lobby.Rooms(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *Handler) RoomInfo(c *gin.Context) {
	room, err := domain.ParseRoomID(c.Param("room"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	members, ok, err := h.lobby.Members(c.Request.Context(), room)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room has no members"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"name":    room,
		"members": members,
		"count":   len(members),
	})
}
