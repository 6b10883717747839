// Package realtime pushes queue change events to connected browser clients.
// The hub holds the client set; a bridge subscribes it to the in-process
// change feed and the sockjs handler attaches transports.
package realtime

import (
	"encoding/json"
	"log"
	"sync"
)

// Subscription narrows what a client receives. An empty department matches
// every event.
type Subscription struct {
	Department string
}

type Client struct {
	ID           string
	Send         chan []byte
	Subscription Subscription
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// SubscribeMessage is the client -> server control frame.
type SubscribeMessage struct {
	Action     string `json:"action"`
	Department string `json:"department"`
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
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

func (h *Hub) UpdateSubscription(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
}

// Broadcast fans a payload out to every client whose subscription matches.
// Slow clients drop the message rather than stall the hub.
func (h *Hub) Broadcast(payload []byte, department string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.Subscription.Department != "" && client.Subscription.Department != department {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			log.Printf("drop message for client %s", client.ID)
		}
	}
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
