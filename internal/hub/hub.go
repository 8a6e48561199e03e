package hub

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// Client receives the names of changed keys. Each client follows a single
// key, so a signal dropped on a full buffer is always covered by one already
// queued.
type Client struct {
	ID   string
	Key  string
	Send chan string
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  zerolog.Logger
}

type SubscribeMessage struct {
	Action string   `json:"action"`
	Keys   []string `json:"keys"`
}

func New(logger zerolog.Logger) *Hub {
	return &Hub{clients: make(map[string]*Client), logger: logger}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

// Broadcast signals key to every client following it and reports how many
// clients were matched.
func (h *Hub) Broadcast(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	matched := 0
	for _, client := range h.clients {
		if client.Key != key {
			continue
		}
		matched++
		select {
		case client.Send <- key:
		default:
			h.logger.Debug().Str("client_id", client.ID).Str("key", key).Msg("signal coalesced")
		}
	}
	return matched
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}
