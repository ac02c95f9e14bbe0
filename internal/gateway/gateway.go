package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pushp314/chhattisgarhshadi-backend-sub000/internal/auth"
	"github.com/pushp314/chhattisgarhshadi-backend-sub000/internal/presence"
	"github.com/pushp314/chhattisgarhshadi-backend-sub000/internal/protocol"
	"github.com/pushp314/chhattisgarhshadi-backend-sub000/internal/relay"
	"go.uber.org/zap"
)

const defaultStoreTimeout = 3 * time.Second

var (
	errMissingVerifier = errors.New("gateway: token verifier required")
	errMissingRegistry = errors.New("gateway: presence registry required")
	errMissingRelay    = errors.New("gateway: message relay required")
	errMissingThrottle = errors.New("gateway: typing throttle required")
	errMissingStore    = errors.New("gateway: store required")
)

// Error codes surfaced to clients on rejected events.
const (
	codeInvalidPayload    = "invalid_payload"
	codeUnknownEvent      = "unknown_event"
	codeSelfMessage       = "self_message"
	codeEmptyContent      = "empty_content"
	codeContentTooLong    = "content_too_long"
	codeBlocked           = "blocked"
	codeRecipientNotFound = "recipient_not_found"
	codeSendFailed        = "send_failed"
)

// TokenVerifier validates handshake bearer tokens.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// MessageRelay routes chat events between users.
type MessageRelay interface {
	Send(ctx context.Context, senderID, receiverID, content string) (relay.Message, error)
	ConfirmDelivered(ctx context.Context, messageID, confirmingUserID string) error
	MarkRead(ctx context.Context, readerID, otherPartyID string) error
}

// TypingGate throttles typing-start events per conversation pair.
type TypingGate interface {
	Accept(senderID, partnerID string) bool
	Clear(senderID, partnerID string)
}

// PresenceStore is the slice of the persistence collaborator the gateway
// needs for presence transitions.
type PresenceStore interface {
	SetLastSeen(ctx context.Context, userID string, at time.Time) error
	Contacts(ctx context.Context, userID string) ([]string, error)
}

// Config describes gateway dependencies.
type Config struct {
	Verifier     TokenVerifier
	Registry     *presence.Registry
	Relay        MessageRelay
	Throttle     TypingGate
	Store        PresenceStore
	Logger       *zap.Logger
	Clock        func() time.Time
	StoreTimeout time.Duration
}

// Gateway authenticates new connections, registers them with the presence
// registry, and pumps client events into the relay and typing throttle.
type Gateway struct {
	verifier     TokenVerifier
	registry     *presence.Registry
	relay        MessageRelay
	throttle     TypingGate
	store        PresenceStore
	logger       *zap.Logger
	clock        func() time.Time
	storeTimeout time.Duration
	upgrader     websocket.Upgrader

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

// New constructs a Gateway.
func New(cfg Config) (*Gateway, error) {
	if cfg.Verifier == nil {
		return nil, errMissingVerifier
	}
	if cfg.Registry == nil {
		return nil, errMissingRegistry
	}
	if cfg.Relay == nil {
		return nil, errMissingRelay
	}
	if cfg.Throttle == nil {
		return nil, errMissingThrottle
	}
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	timeout := cfg.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &Gateway{
		verifier:     cfg.Verifier,
		registry:     cfg.Registry,
		relay:        cfg.Relay,
		throttle:     cfg.Throttle,
		store:        cfg.Store,
		logger:       logger,
		clock:        clock,
		storeTimeout: timeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*Conn]struct{}),
	}, nil
}

// Handler authenticates and serves one websocket connection. The token is
// verified before the upgrade, so a rejected handshake creates no state.
func (g *Gateway) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.Request)
		claims, err := g.verifier.Verify(token)
		if err != nil {
			g.logger.Warn("handshake rejected", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		socket, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade has already written the HTTP error response.
			g.logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		g.serve(claims.UserID, socket)
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func (g *Gateway) serve(userID string, socket *websocket.Conn) {
	conn := newConn(uuid.NewString(), userID, socket, g.logger, g.clock)
	go conn.writePump()

	g.track(conn)
	cameOnline := g.registry.Add(userID, conn.ID(), conn)
	g.logger.Info("connection registered",
		zap.String("user_id", userID),
		zap.String("connection_id", conn.ID()),
		zap.Bool("came_online", cameOnline))
	if cameOnline {
		g.broadcastPresence(userID, true)
	}

	defer func() {
		wentOffline := g.registry.Remove(userID, conn.ID())
		conn.Close()
		g.untrack(conn)
		g.logger.Info("connection deregistered",
			zap.String("user_id", userID),
			zap.String("connection_id", conn.ID()),
			zap.Bool("went_offline", wentOffline))
		if wentOffline {
			g.recordLastSeen(userID)
			g.broadcastPresence(userID, false)
		}
	}()

	g.readLoop(conn)
}

// readLoop processes inbound frames strictly in arrival order, preserving
// per-connection FIFO semantics.
func (g *Gateway) readLoop(conn *Conn) {
	socket := conn.socket
	socket.SetReadLimit(maxFrameBytes)
	_ = socket.SetReadDeadline(time.Now().Add(pongTimeout))
	socket.SetPongHandler(func(string) error {
		return socket.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, raw, err := socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Debug("socket read failed",
					zap.String("connection_id", conn.ID()), zap.Error(err))
			}
			return
		}

		envelope, err := protocol.DecodeEnvelope(raw)
		if err != nil {
			g.replyError(conn, codeInvalidPayload, "frame could not be decoded")
			continue
		}
		g.handleEvent(conn, envelope)
	}
}

func (g *Gateway) handleEvent(conn *Conn, envelope protocol.Envelope) {
	switch envelope.Event {
	case protocol.EventMessageSend:
		g.handleSend(conn, envelope.Data)
	case protocol.EventMessageDelivered:
		g.handleDelivered(conn, envelope.Data)
	case protocol.EventMessageRead:
		g.handleRead(conn, envelope.Data)
	case protocol.EventTypingStart:
		g.handleTyping(conn, envelope.Data, true)
	case protocol.EventTypingStop:
		g.handleTyping(conn, envelope.Data, false)
	default:
		g.replyError(conn, codeUnknownEvent, envelope.Event)
	}
}

func (g *Gateway) handleSend(conn *Conn, data json.RawMessage) {
	var payload protocol.SendPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		g.replyError(conn, codeInvalidPayload, "message:send payload invalid")
		return
	}

	message, err := g.relay.Send(conn.Context(), conn.UserID(), payload.ReceiverID, payload.Content)
	if err != nil {
		g.replyError(conn, sendErrorCode(err), "")
		return
	}
	g.reply(conn, protocol.EventMessageAck, message)
}

func sendErrorCode(err error) string {
	switch {
	case errors.Is(err, relay.ErrSelfMessage):
		return codeSelfMessage
	case errors.Is(err, relay.ErrEmptyContent):
		return codeEmptyContent
	case errors.Is(err, relay.ErrContentTooLong):
		return codeContentTooLong
	case errors.Is(err, relay.ErrBlocked):
		return codeBlocked
	case errors.Is(err, relay.ErrRecipientNotFound):
		return codeRecipientNotFound
	default:
		return codeSendFailed
	}
}

func (g *Gateway) handleDelivered(conn *Conn, data json.RawMessage) {
	var payload protocol.DeliveredPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.MessageID == "" {
		return
	}
	// Confirmation outcomes are never surfaced; a forged or stale
	// confirmation looks identical to a successful one from outside.
	_ = g.relay.ConfirmDelivered(conn.Context(), payload.MessageID, conn.UserID())
}

func (g *Gateway) handleRead(conn *Conn, data json.RawMessage) {
	var payload protocol.ReadPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.PartnerID == "" {
		return
	}
	_ = g.relay.MarkRead(conn.Context(), conn.UserID(), payload.PartnerID)
}

func (g *Gateway) handleTyping(conn *Conn, data json.RawMessage, start bool) {
	var payload protocol.TypingPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.PartnerID == "" {
		return
	}

	event := protocol.EventTypingStop
	if start {
		if !g.throttle.Accept(conn.UserID(), payload.PartnerID) {
			return
		}
		event = protocol.EventTypingStart
	} else {
		g.throttle.Clear(conn.UserID(), payload.PartnerID)
	}

	outbound, err := protocol.NewEnvelope(event, protocol.TypingPayload{
		PartnerID: payload.PartnerID,
		SenderID:  conn.UserID(),
	})
	if err != nil {
		return
	}
	g.registry.Publish(payload.PartnerID, outbound)
}

// broadcastPresence notifies every contact's open connections of a user-level
// online/offline transition. Multi-device churn never reaches here: the
// registry reports transitions only when the connection set becomes non-empty
// or empty.
func (g *Gateway) broadcastPresence(userID string, online bool) {
	ctx, cancel := context.WithTimeout(context.Background(), g.storeTimeout)
	defer cancel()

	contacts, err := g.store.Contacts(ctx, userID)
	if err != nil {
		g.logger.Warn("contact lookup failed, presence broadcast skipped",
			zap.String("user_id", userID), zap.Error(err))
		return
	}

	event := protocol.EventPresenceOffline
	payload := protocol.PresencePayload{UserID: userID}
	if online {
		event = protocol.EventPresenceOnline
	} else {
		payload.LastSeen = g.clock().UTC()
	}
	envelope, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		return
	}
	for _, contactID := range contacts {
		g.registry.Publish(contactID, envelope)
	}
}

func (g *Gateway) recordLastSeen(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), g.storeTimeout)
	defer cancel()
	if err := g.store.SetLastSeen(ctx, userID, g.clock().UTC()); err != nil {
		g.logger.Warn("last seen update failed",
			zap.String("user_id", userID), zap.Error(err))
	}
}

func (g *Gateway) reply(conn *Conn, event string, payload any) {
	envelope, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		g.logger.Error("reply encoding failed", zap.String("event", event), zap.Error(err))
		return
	}
	conn.Deliver(envelope)
}

func (g *Gateway) replyError(conn *Conn, code, message string) {
	g.reply(conn, protocol.EventError, protocol.ErrorPayload{Code: code, Message: message})
}

func (g *Gateway) track(conn *Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.conns[conn] = struct{}{}
}

func (g *Gateway) untrack(conn *Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.conns, conn)
}

// Shutdown closes every open connection; each read loop then deregisters its
// own connection through the usual path.
func (g *Gateway) Shutdown() {
	g.mu.Lock()
	conns := make([]*Conn, 0, len(g.conns))
	for conn := range g.conns {
		conns = append(conns, conn)
	}
	g.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}
