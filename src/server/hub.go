package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"credit-observer/src/alerting"
	"credit-observer/src/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// Snapshot is sent on connect and in reply to a subscribe command.
type Snapshot struct {
	Type     string        `json:"type"`
	Messages []interface{} `json:"messages"`
}

// subscription replaces a client's symbol filter. Applied by the hub loop,
// which owns every client's filter.
type subscription struct {
	client  *Client
	symbols map[string]struct{}
}

// symbolOf returns the issuer a pushed message is about, or "" for messages
// every client receives.
func symbolOf(payload interface{}) string {
	switch m := payload.(type) {
	case alerting.AlertMessage:
		return m.Alert.Symbol
	case *alerting.AlertMessage:
		return m.Alert.Symbol
	}
	return ""
}

// handleWebsockets is the main Hub loop
func (s *APIServer) handleWebsockets() {
	for {
		select {
		case <-s.done:
			for client := range s.clients {
				close(client.send)
			}
			s.clients = map[*Client]struct{}{}
			s.setConnections(0)
			return

		case client := <-s.register:
			s.clients[client] = struct{}{}
			s.setConnections(len(s.clients))
			client.send <- s.snapshot(client)

		case sub := <-s.subscribe:
			if _, ok := s.clients[sub.client]; ok {
				sub.client.symbols = sub.symbols
				// Send the replay for the new filter; skip if the client is backed up.
				select {
				case sub.client.send <- s.snapshot(sub.client):
				default:
				}
			}

		case client := <-s.unregister:
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
				s.setConnections(len(s.clients))
			}

		case message := <-s.broadcast:
			s.recent.Append(message)
			s.stateMutex.Lock()
			s.lastPush = time.Now().Unix()
			s.stateMutex.Unlock()

			symbol := symbolOf(message)
			for client := range s.clients {
				if !client.wants(symbol) {
					continue
				}
				select {
				case client.send <- message:
				default:
					// Slow consumer, drop it rather than block the hub
					delete(s.clients, client)
					close(client.send)
				}
			}
			s.setConnections(len(s.clients))
		}
	}
}

func (s *APIServer) setConnections(n int) {
	s.stateMutex.Lock()
	s.connections = n
	s.stateMutex.Unlock()
}

// snapshot returns the recent messages the client is subscribed to.
func (s *APIServer) snapshot(c *Client) Snapshot {
	out := Snapshot{Type: "INITIAL", Messages: []interface{}{}}
	for _, m := range s.recent.GetAll() {
		if c.wants(symbolOf(m)) {
			out.Messages = append(out.Messages, m)
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Broadcaster Implementation
// -----------------------------------------------------------------------------

// Broadcast queues payload for every subscribed client. It never blocks: when
// the queue is full the message is dropped and logged.
func (s *APIServer) Broadcast(payload interface{}) {
	select {
	case s.broadcast <- payload:
	default:
		s.Logger.Warning("Broadcast queue full, dropping %T", payload)
	}
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *APIServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := &Client{
		hub:  s,
		conn: conn,
		addr: conn.RemoteAddr().String(),
		// Buffered channel to prevent blocking the Hub loop
		send: make(chan interface{}, 256),
	}

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

func (s *APIServer) HandleClientMessage(client *Client, message []byte) {
	var cmd models.MSubscribeCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		s.Logger.Info("Failed to parse client command: %v, disconnecting client", err)
		client.conn.Close()
		return
	}
	if cmd.Command != "subscribe" {
		return
	}

	set := make(map[string]struct{}, len(cmd.Symbols))
	for _, sym := range cmd.Symbols {
		if sym = strings.ToUpper(strings.TrimSpace(sym)); sym != "" {
			set[sym] = struct{}{}
		}
	}

	select {
	case s.subscribe <- subscription{client: client, symbols: set}:
	case <-s.done:
	}
}
