package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pliu/securemsg/internal/chat"
	"github.com/pliu/securemsg/internal/models"
)

type Options struct {
	Mode           DeliveryMode
	AllowedOrigins []string
	MaxMessageSize int64
	RateBurst      int
	RateInterval   time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	if o.RateBurst <= 0 {
		o.RateBurst = 20
	}
	if o.RateInterval <= 0 {
		o.RateInterval = time.Second
	}
	return o
}

// Hub binds live connections to user ids and conversation groups and routes
// pushes to them. Membership is only ever changed by the connection it
// belongs to; mu guards the indexes and each client's closed flag.
type Hub struct {
	chat     *chat.Service
	opts     Options
	upgrader websocket.Upgrader

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	mu     sync.RWMutex
	byUser map[int]map[*Client]struct{}
	groups map[string]map[*Client]struct{}

	wg      sync.WaitGroup
	started atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewHub(chatService *chat.Service, opts Options) *Hub {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	origins := newOriginPolicy(opts.AllowedOrigins)
	return &Hub{
		chat: chatService,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
		register:   make(chan *Client),
		unregister: make(chan *Client),
		byUser:     make(map[int]map[*Client]struct{}),
		groups:     make(map[string]map[*Client]struct{}),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Run processes registrations until Shutdown is called. It must run in its
// own goroutine before connections are accepted.
func (h *Hub) Run() {
	h.started.Store(true)
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if !h.addClient(client) {
				continue
			}
			log.Printf("Connection %s registered for user %d. Total connections: %d", client.id, client.identity.UserID, h.ConnectionCount())
			h.sendJSON(client, Handshake{Type: FrameHandshake, ConnectionID: client.id, UserID: client.identity.UserID})
			h.startPumps(client)

		case client := <-h.unregister:
			if h.removeClient(client) {
				log.Printf("Connection %s unregistered for user %d. Total connections: %d", client.id, client.identity.UserID, h.ConnectionCount())
			}
		}
	}
}

func (h *Hub) startPumps(client *Client) {
	if client.conn == nil {
		return
	}
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

func (h *Hub) addClient(client *Client) bool {
	if client == nil {
		log.Printf("Received nil client registration; skipping")
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if client.closed {
		return false
	}
	set, ok := h.byUser[client.identity.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		h.byUser[client.identity.UserID] = set
	}
	set[client] = struct{}{}
	return true
}

// removeClient drops the client from every index, releases its group
// memberships and closes its send channel. It reports whether the client was
// still open.
func (h *Hub) removeClient(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.closed {
		return false
	}
	client.closed = true

	userID := client.identity.UserID
	if set, ok := h.byUser[userID]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.byUser, userID)
		}
	}
	for key := range client.groups {
		h.leaveGroupLocked(client, key)
	}
	close(client.send)
	return true
}

func (h *Hub) leaveGroupLocked(client *Client, key string) {
	delete(client.groups, key)
	if members, ok := h.groups[key]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.groups, key)
		}
	}
}

// requestUnregister hands the client to Run, or removes it directly once the
// hub has stopped.
func (h *Hub) requestUnregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		h.removeClient(client)
	}
}

func (h *Hub) addToGroup(client *Client, key string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.closed {
		return
	}
	members, ok := h.groups[key]
	if !ok {
		members = make(map[*Client]struct{})
		h.groups[key] = members
	}
	members[client] = struct{}{}
	client.groups[key] = struct{}{}
}

func (h *Hub) removeFromGroup(client *Client, key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveGroupLocked(client, key)
}

// SendMessage validates and persists a message from the client's user, then
// pushes ReceiveMessage to the recipient. Persistence is detached from ctx so
// a disconnect does not abort an insert that already started.
func (h *Hub) SendMessage(ctx context.Context, client *Client, recipientID int, content string) (*models.Message, error) {
	senderID := client.identity.UserID
	msg, err := h.chat.Send(context.WithoutCancel(ctx), senderID, recipientID, content)
	if err != nil {
		return nil, err
	}

	target := ToUser(recipientID)
	if h.opts.Mode == DeliverToConversation {
		target = ToGroup(chat.ConversationKey(senderID, recipientID))
	}
	h.Deliver(target, Push{Type: FrameInvocation, Target: MethodReceiveMessage, Arguments: []any{msg}})
	return msg, nil
}

// JoinConversation adds the calling connection to the group it shares with
// recipientID.
func (h *Hub) JoinConversation(ctx context.Context, client *Client, recipientID int) error {
	senderID := client.identity.UserID
	if err := h.chat.CheckParticipants(ctx, senderID, recipientID); err != nil {
		return err
	}
	h.addToGroup(client, chat.ConversationKey(senderID, recipientID))
	return nil
}

func (h *Hub) LeaveConversation(ctx context.Context, client *Client, recipientID int) error {
	senderID := client.identity.UserID
	if err := h.chat.CheckSender(ctx, senderID); err != nil {
		return err
	}
	h.removeFromGroup(client, chat.ConversationKey(senderID, recipientID))
	return nil
}

// Deliver sends v to every connection matching target and returns how many
// accepted it. Connections whose buffer is full are dropped.
func (h *Hub) Deliver(target Target, v any) int {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("Error marshaling delivery to %s: %v", target, err)
		return 0
	}

	var delivered int
	var failed []*Client
	for _, client := range h.clientsFor(target) {
		if h.safeSend(client, payload) {
			delivered++
		} else {
			failed = append(failed, client)
		}
	}
	for _, client := range failed {
		if h.removeClient(client) {
			log.Printf("Connection %s removed due to full send buffer", client.id)
		}
	}
	return delivered
}

func (h *Hub) clientsFor(target Target) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var set map[*Client]struct{}
	switch target.Kind {
	case TargetUser:
		set = h.byUser[target.UserID]
	case TargetGroup:
		set = h.groups[target.Group]
	}
	clients := make([]*Client, 0, len(set))
	for client := range set {
		clients = append(clients, client)
	}
	return clients
}

// safeSend queues payload without blocking. The read lock keeps
// removeClient from closing the channel mid-send.
func (h *Hub) safeSend(client *Client, payload []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if client.closed {
		return false
	}
	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

func (h *Hub) sendJSON(client *Client, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("Error marshaling frame for %s: %v", client.id, err)
		return
	}
	if !h.safeSend(client, payload) && h.removeClient(client) {
		log.Printf("Connection %s removed due to full send buffer", client.id)
	}
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, set := range h.byUser {
		n += len(set)
	}
	return n
}

// IsOnline reports whether the user has at least one live connection.
func (h *Hub) IsOnline(userID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID]) > 0
}

func (h *Hub) GroupSize(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[key])
}

func (h *Hub) shutdownClients() {
	h.mu.RLock()
	clients := make([]*Client, 0)
	for _, set := range h.byUser {
		for client := range set {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if client.conn != nil {
			client.conn.Close()
		}
	}
	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown stops Run, closes every connection and waits for the pumps to
// exit, up to timeout. It returns immediately for a hub that never ran.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")
	h.cancel()
	if h.started.Load() {
		<-h.done
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some connections may still be open")
		return context.DeadlineExceeded
	}
}
