package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"noddymix/logger"
	"noddymix/model"
	"noddymix/repository"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// feedClient is one websocket subscriber to the live activity feed.
type feedClient struct {
	hub      *FeedHub
	conn     *websocket.Conn
	send     chan []byte
	userID   int64
	followed map[int64]bool
}

// FeedHub fans live activities out to connected users. It subscribes to
// the Redis channel the activity publisher writes to and forwards each
// activity to the connected followers of its actor. Each client's
// followed set is a snapshot taken at connect time.
type FeedHub struct {
	clients    map[*feedClient]bool
	register   chan *feedClient
	unregister chan *feedClient
	incoming   chan []byte
	done       chan struct{}
	mu         sync.RWMutex
}

// NewFeedHub creates a FeedHub.
func NewFeedHub() *FeedHub {
	return &FeedHub{
		clients:    make(map[*feedClient]bool),
		register:   make(chan *feedClient),
		unregister: make(chan *feedClient),
		incoming:   make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run drives the hub loop until Stop is called.
func (h *FeedHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logger.Info("Feed client connected", logger.Int64("userID", client.userID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case payload := <-h.incoming:
			h.dispatch(payload)

		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
			}
			h.clients = make(map[*feedClient]bool)
			h.mu.Unlock()
			return
		}
	}
}

// Stop shuts the hub down and disconnects every client.
func (h *FeedHub) Stop() {
	close(h.done)
}

// add registers a client with the hub loop. It returns false when the hub
// has already stopped, so connection setup never blocks on a dead loop.
func (h *FeedHub) add(c *feedClient) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// remove unregisters a client. Safe to call after Stop; the stop path
// already closed every send channel.
func (h *FeedHub) remove(c *feedClient) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Subscribe pumps the Redis activity channel into the hub until ctx is
// done. A dropped connection ends the pump; the stored feed remains
// available over plain HTTP.
func (h *FeedHub) Subscribe(ctx context.Context, client *redis.Client, channel string) {
	pubsub := client.Subscribe(ctx, channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			select {
			case h.incoming <- []byte(msg.Payload):
			default:
				// Fanout backlog; drop rather than stall the subscriber.
			}
		}
	}
}

// dispatch sends one published activity to the connected followers of
// its actor.
func (h *FeedHub) dispatch(payload []byte) {
	var act model.Activity
	if err := json.Unmarshal(payload, &act); err != nil {
		logger.Warn("Dropping malformed activity payload", logger.ErrorField(err))
		return
	}

	h.mu.RLock()
	targets := make([]*feedClient, 0)
	for client := range h.clients {
		if client.followed[act.ActorID] {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		select {
		case client.send <- payload:
		default:
			// Slow consumer; let the write pump's failure clean it up.
		}
	}
}

// FeedSocketHandler upgrades the connection and streams the acting
// user's live feed.
func (h *APIHandler) FeedSocketHandler(hub *FeedHub, following repository.FollowingRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		followedIDs, err := following.FollowedIDs(userID)
		if err != nil {
			logger.Error("Failed to load followed users for feed socket",
				logger.Int64("userID", userID), logger.ErrorField(err))
			respondError(w, http.StatusInternalServerError, "failed to open feed")
			return
		}
		followed := make(map[int64]bool, len(followedIDs))
		for _, id := range followedIDs {
			followed[id] = true
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("Feed socket upgrade failed", logger.ErrorField(err))
			return
		}

		client := &feedClient{
			hub:      hub,
			conn:     conn,
			send:     make(chan []byte, 64),
			userID:   userID,
			followed: followed,
		}
		if !hub.add(client) {
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}

// readPump drains control frames and detects disconnects.
func (c *feedClient) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *feedClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
