// Package stream exposes a WebSocket ingest endpoint for reward
// computation. A connection binds to one session and submits batches as
// JSON frames; each frame is acknowledged in order with the computed
// reward, so episode drivers can stream ticks without per-call HTTP
// overhead.
package stream

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/critic/internal/domain/model"
	"github.com/okian/critic/internal/domain/validate"
	"github.com/okian/critic/pkg/logger"
	"github.com/okian/critic/pkg/metrics"
)

// Connection tuning constants.
const (
	writeTimeout   = 10 * time.Second
	pongTimeout    = 60 * time.Second
	pingInterval   = 54 * time.Second
	maxMessageSize = 1 << 20
)

// Rewarder computes rewards for streamed batches.
type Rewarder interface {
	ComputeReward(ctx context.Context, sessionID, batchID string, records []model.EventRecord) (model.ScalarReward, bool, error)
}

// request is one inbound frame: a batch for the bound session.
type request struct {
	BatchID string              `json:"batch_id"`
	Records []model.EventRecord `json:"records"`
}

// response acknowledges one frame, echoing the batch id so drivers can
// correlate out-of-band.
type response struct {
	BatchID   string              `json:"batch_id,omitempty"`
	Status    string              `json:"status"`
	Duplicate bool                `json:"duplicate"`
	Reward    *model.ScalarReward `json:"reward,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// Handler upgrades HTTP connections and pumps reward frames.
type Handler struct {
	rewarder Rewarder
	upgrader websocket.Upgrader
	logger   logger.Logger
}

// Option applies a configuration option to the Handler.
type Option func(*Handler)

// WithLogger sets a custom logger for the handler.
func WithLogger(l logger.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandler creates a stream handler backed by the given rewarder.
func NewHandler(rewarder Rewarder, opts ...Option) *Handler {
	h := &Handler{
		rewarder: rewarder,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The daemon fronts trusted episode drivers, not browsers.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.logger == nil {
		h.logger = logger.Get().Named("stream")
	}

	return h
}

// Register attaches the stream route to mux.
func (h *Handler) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/stream/", h.HandleStream)
}

// HandleStream handles GET /stream/{session_id} upgrade requests. The
// session must already exist; every frame on the connection computes
// against it.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionFromPath(r.URL.Path)
	if sessionID == "" {
		http.NotFound(w, r)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}

	metrics.IncStreamConnections()
	defer metrics.DecStreamConnections()

	h.logger.Info(r.Context(), "stream opened", logger.String("sessionID", sessionID))
	h.serve(r.Context(), conn, sessionID)
	h.logger.Info(r.Context(), "stream closed", logger.String("sessionID", sessionID))
}

// serve pumps frames until the peer goes away. Pings keep half-open
// connections from lingering past pongTimeout. The connection supports
// one writer at a time, so ack and ping writes share a mutex.
func (h *Handler) serve(ctx context.Context, conn *websocket.Conn, sessionID string) {
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	var writeMu sync.Mutex
	done := make(chan struct{})
	defer close(done)
	go h.ping(conn, &writeMu, done)

	for {
		var req request
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn(ctx, "stream read failed",
					logger.String("sessionID", sessionID),
					logger.Error(err),
				)
			}
			return
		}
		metrics.RecordStreamMessage("in")

		resp := h.compute(ctx, sessionID, req)

		writeMu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err := conn.WriteJSON(resp)
		writeMu.Unlock()
		if err != nil {
			h.logger.Warn(ctx, "stream write failed",
				logger.String("sessionID", sessionID),
				logger.Error(err),
			)
			return
		}
		metrics.RecordStreamMessage("out")
	}
}

// compute maps one frame onto a reward acknowledgement.
func (h *Handler) compute(ctx context.Context, sessionID string, req request) response {
	reward, duplicate, err := h.rewarder.ComputeReward(ctx, sessionID, req.BatchID, req.Records)
	if err != nil {
		status := "error"
		if errors.Is(err, validate.ErrSchemaViolation) {
			status = "schema_violation"
		}
		return response{BatchID: req.BatchID, Status: status, Error: err.Error()}
	}
	if duplicate {
		return response{BatchID: req.BatchID, Status: "duplicate", Duplicate: true}
	}
	return response{BatchID: req.BatchID, Status: "computed", Reward: &reward}
}

// ping emits keepalive frames until the connection serve loop exits.
func (h *Handler) ping(conn *websocket.Conn, writeMu *sync.Mutex, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// sessionFromPath extracts the session id from /stream/{session_id}.
func sessionFromPath(path string) string {
	const prefix = "/stream/"
	if len(path) <= len(prefix) {
		return ""
	}
	id := path[len(prefix):]
	for i := 0; i < len(id); i++ {
		if id[i] == '/' {
			return ""
		}
	}
	return id
}
