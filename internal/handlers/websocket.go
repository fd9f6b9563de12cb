package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/interfaces"
)

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope of every message sent to stream clients
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// BatchStreamHandler streams the progress of one batch over a WebSocket. The
// client first receives a snapshot of the batch, then every progress event,
// and the connection closes once the batch is terminal.
type BatchStreamHandler struct {
	batches BatchCoordinator
	events  interfaces.EventService
	logger  arbor.ILogger
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewBatchStreamHandler creates a new BatchStreamHandler
func NewBatchStreamHandler(batches BatchCoordinator, events interfaces.EventService, logger arbor.ILogger) *BatchStreamHandler {
	return &BatchStreamHandler{
		batches: batches,
		events:  events,
		logger:  logger,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// StreamHandler handles GET /api/batches/{id}/ws
func (h *BatchStreamHandler) StreamHandler(w http.ResponseWriter, r *http.Request, batchID string) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	job, err := h.batches.Get(r.Context(), batchID)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to get batch")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	h.track(conn)
	defer h.untrack(conn)

	var writeMu sync.Mutex
	send := func(msg WSMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(msg)
	}

	done := make(chan struct{})
	var once sync.Once
	finish := func() { once.Do(func() { close(done) }) }

	forward := func(ctx context.Context, event interfaces.Event) error {
		payload, ok := event.Payload.(map[string]interface{})
		if !ok || payload["batch_id"] != batchID {
			return nil
		}
		if err := send(WSMessage{Type: string(event.Type), Payload: payload}); err != nil {
			finish()
			return err
		}
		if event.Type == interfaces.EventBatchCompleted {
			finish()
		}
		return nil
	}

	// Hold the writer until the snapshot is out so no event precedes it
	writeMu.Lock()
	for _, t := range []interfaces.EventType{interfaces.EventBatchProgress, interfaces.EventBatchCompleted} {
		unsubscribe, err := h.events.Subscribe(t, forward)
		if err != nil {
			writeMu.Unlock()
			h.logger.Error().Err(err).Str("batch_id", batchID).Msg("Failed to subscribe to batch events")
			return
		}
		defer unsubscribe()
	}

	// Re-read after subscribing so a batch finishing in between is not missed
	if latest, err := h.batches.Get(r.Context(), batchID); err == nil {
		job = latest
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	err = conn.WriteJSON(WSMessage{Type: "snapshot", Payload: job})
	writeMu.Unlock()
	if err != nil {
		return
	}
	if job.Status.IsTerminal() {
		h.closeNormal(conn, &writeMu)
		return
	}

	// Reads only detect the client going away
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug().Err(err).Str("batch_id", batchID).Msg("WebSocket read error")
				}
				finish()
				return
			}
		}
	}()

	<-done
	h.closeNormal(conn, &writeMu)
}

func (h *BatchStreamHandler) closeNormal(conn *websocket.Conn, writeMu *sync.Mutex) {
	writeMu.Lock()
	defer writeMu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "batch finished")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}

func (h *BatchStreamHandler) track(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug().Int("clients", count).Msg("Batch stream client connected")
}

func (h *BatchStreamHandler) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	count := len(h.clients)
	h.mu.Unlock()
	conn.Close()
	h.logger.Debug().Int("clients", count).Msg("Batch stream client disconnected")
}

// Close disconnects every stream client
func (h *BatchStreamHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
	}
}
