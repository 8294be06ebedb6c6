package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pliu/securemsg/internal/auth"
	"github.com/pliu/securemsg/internal/chat"
	"github.com/pliu/securemsg/internal/middleware"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	sendBufferSize = 256
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	id       string
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	identity auth.Identity
	limiter  *rate.Limiter

	// Guarded by hub.mu.
	groups map[string]struct{}
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn, identity auth.Identity) *Client {
	limit := rate.Limit(float64(hub.opts.RateBurst) / hub.opts.RateInterval.Seconds())
	return &Client{
		id:       uuid.NewString(),
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		identity: identity,
		limiter:  rate.NewLimiter(limit, hub.opts.RateBurst),
		groups:   make(map[string]struct{}),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) UserID() int { return c.identity.UserID }

// readPump pumps invocations from the websocket connection to the hub. Each
// invocation is answered before the next one is read.
func (c *Client) readPump() {
	defer func() {
		c.hub.requestUnregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(c.hub.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				log.Printf("Message from %s exceeded maximum size of %d bytes", c.id, c.hub.opts.MaxMessageSize)
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WS error from %s: %v", c.id, err)
			}
			break
		}
		c.handleFrame(c.hub.ctx, message)
	}
}

func (c *Client) handleFrame(ctx context.Context, raw []byte) {
	var inv Invocation
	if err := json.Unmarshal(raw, &inv); err != nil {
		log.Printf("Invalid frame from %s: %v", c.id, err)
		c.hub.sendJSON(c, Completion{Type: FrameCompletion, Error: "Invalid frame"})
		return
	}
	if inv.Type != FrameInvocation {
		return
	}

	if !c.limiter.Allow() {
		log.Printf("Rate limit exceeded for %s; rejecting %s", c.id, inv.Target)
		c.complete(inv, nil, "Rate limit exceeded")
		return
	}

	result, err := c.invoke(ctx, inv)
	if err != nil {
		c.complete(inv, nil, c.errorMessage(inv, err))
		return
	}
	c.complete(inv, result, "")
}

var errUnknownMethod = errors.New("unknown hub method")

// argumentError marks a payload that could not be bound to the method's
// parameters.
type argumentError struct{ err error }

func (e *argumentError) Error() string { return e.err.Error() }
func (e *argumentError) Unwrap() error { return e.err }

func (c *Client) invoke(ctx context.Context, inv Invocation) (any, error) {
	switch inv.Target {
	case MethodSendMessage:
		var recipientID int
		var content string
		if err := decodeArguments(inv.Arguments, &recipientID, &content); err != nil {
			return nil, &argumentError{err}
		}
		return c.hub.SendMessage(ctx, c, recipientID, content)

	case MethodJoinConversation:
		var recipientID int
		if err := decodeArguments(inv.Arguments, &recipientID); err != nil {
			return nil, &argumentError{err}
		}
		return nil, c.hub.JoinConversation(ctx, c, recipientID)

	case MethodLeaveConversation:
		var recipientID int
		if err := decodeArguments(inv.Arguments, &recipientID); err != nil {
			return nil, &argumentError{err}
		}
		return nil, c.hub.LeaveConversation(ctx, c, recipientID)

	default:
		return nil, errUnknownMethod
	}
}

// errorMessage maps an invocation failure to the text sent to the client.
// Storage failures are logged and reported generically.
func (c *Client) errorMessage(inv Invocation, err error) string {
	if chatErr, ok := chat.AsError(err); ok {
		return chatErr.Message
	}
	var argErr *argumentError
	switch {
	case errors.Is(err, errUnknownMethod):
		return fmt.Sprintf("Unknown hub method '%s'", inv.Target)
	case errors.As(err, &argErr):
		return fmt.Sprintf("Invalid arguments for '%s': %v", inv.Target, argErr.err)
	}
	log.Printf("Error invoking %s for connection %s (user %d): %v", inv.Target, c.id, c.identity.UserID, err)
	return fmt.Sprintf("An unexpected error occurred invoking '%s' on the server.", inv.Target)
}

func (c *Client) complete(inv Invocation, result any, errMsg string) {
	if inv.InvocationID == "" {
		return
	}
	c.hub.sendJSON(c, Completion{
		Type:         FrameCompletion,
		InvocationID: inv.InvocationID,
		Result:       result,
		Error:        errMsg,
	})
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades an authenticated request and registers the connection.
// The identity comes from the auth middleware, never from the client.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	client := newClient(hub, conn, *identity)
	select {
	case hub.register <- client:
	case <-hub.ctx.Done():
		conn.Close()
	}
}
