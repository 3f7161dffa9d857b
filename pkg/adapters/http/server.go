package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/gamestate/internal/logging"
	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/history"
	"github.com/aretw0/gamestate/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultBufferSize is the number of inbound presentation messages held
// while the executor is not waiting for them.
const DefaultBufferSize = 16

// ErrBackpressure is returned when the inbound message buffer is full.
var ErrBackpressure = errors.New("presentation message buffer is full")

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithBufferSize sets the inbound message buffer size.
func WithBufferSize(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// WithMaxInputSize bounds each string field of a posted message.
func WithMaxInputSize(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.maxInput = n
		}
	}
}

// WithHistory exposes the recorded history of store under GET /history.
func WithHistory(store ports.CriticalDataStore) Option {
	return func(b *Bridge) {
		b.history = store
	}
}

// WithMetrics mounts a Prometheus endpoint for gatherer under GET /metrics.
func WithMetrics(gatherer prometheus.Gatherer) Option {
	return func(b *Bridge) {
		b.gatherer = gatherer
	}
}

// Bridge is a Presentation served over HTTP. Started states and asynchronous
// updates are published as server-sent events; a remote presentation reports
// completion and negotiates data by POSTing messages back.
type Bridge struct {
	mu      sync.RWMutex
	current *Snapshot

	messages   chan domain.PresentationMessage
	bufferSize int
	maxInput   int
	streams    *StreamManager
	history    ports.CriticalDataStore
	gatherer   prometheus.Gatherer
	logger     *slog.Logger
}

var _ ports.Presentation = (*Bridge)(nil)

// Snapshot is the state currently shown by the presentation.
type Snapshot struct {
	State     string         `json:"state"`
	Data      domain.DataBag `json:"data"`
	StartedAt time.Time      `json:"started_at"`
	Updates   int            `json:"updates"`
}

// Event is the payload of a server-sent event.
type Event struct {
	Type  string         `json:"type"`
	State string         `json:"state"`
	Data  domain.DataBag `json:"data,omitempty"`
}

const (
	EventStart  = "start"
	EventUpdate = "update"
)

// NewBridge creates an HTTP presentation bridge.
func NewBridge(opts ...Option) *Bridge {
	b := &Bridge{
		bufferSize: DefaultBufferSize,
		maxInput:   DefaultMaxInputSize,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.messages = make(chan domain.PresentationMessage, b.bufferSize)
	b.streams = NewStreamManager(b.logger)
	return b
}

// StartState records the started state and publishes it.
func (b *Bridge) StartState(ctx context.Context, name string, data domain.DataBag) error {
	snap := &Snapshot{State: name, Data: data.Clone(), StartedAt: time.Now()}
	if snap.Data == nil {
		snap.Data = domain.DataBag{}
	}

	b.mu.Lock()
	b.current = snap
	b.mu.Unlock()

	b.logger.Debug("Presentation state started", "state", name)
	return b.publish(Event{Type: EventStart, State: name, Data: data})
}

// UpdateAsynchronousData merges data into the shown state and publishes the delta.
func (b *Bridge) UpdateAsynchronousData(ctx context.Context, name string, data domain.DataBag) error {
	b.mu.Lock()
	if b.current != nil && b.current.State == name {
		b.current.Data.Merge(data)
		b.current.Updates++
	}
	b.mu.Unlock()

	return b.publish(Event{Type: EventUpdate, State: name, Data: data})
}

// Messages delivers messages POSTed by the remote presentation.
func (b *Bridge) Messages() <-chan domain.PresentationMessage {
	return b.messages
}

// Send queues a message as if the remote presentation had posted it.
func (b *Bridge) Send(msg domain.PresentationMessage) error {
	select {
	case b.messages <- msg:
		return nil
	default:
		return ErrBackpressure
	}
}

// Current returns a copy of the shown state, or nil before the first start.
func (b *Bridge) Current() *Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.current == nil {
		return nil
	}
	c := *b.current
	c.Data = b.current.Data.Clone()
	return &c
}

func (b *Bridge) publish(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode presentation event: %w", err)
	}
	b.streams.Broadcast(string(payload))
	return nil
}

// Handler returns the HTTP API of the bridge.
func (b *Bridge) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", b.getHealth)
	r.Get("/state", b.getState)
	r.Get("/events", b.subscribeEvents)
	r.Post("/presentation/complete", b.postComplete)
	r.Post("/presentation/negotiate", b.postNegotiate)
	if b.history != nil {
		r.Get("/history", b.getHistory)
	}
	if b.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(b.gatherer, promhttp.HandlerOpts{}))
	}

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Bridge) getHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, b.logger)
}

func (b *Bridge) getState(w http.ResponseWriter, r *http.Request) {
	snap := b.Current()
	if snap == nil {
		http.Error(w, "No state started", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap, b.logger)
}

type completeRequest struct {
	Action string `json:"action"`
}

func (b *Bridge) postComplete(w http.ResponseWriter, r *http.Request) {
	var body completeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		b.logger.Warn("Complete: Invalid request body", "err", err)
		return
	}
	action, err := SanitizeInput(body.Action, b.maxInput)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		b.logger.Warn("Complete: Rejected action", "err", err)
		return
	}
	b.accept(w, domain.PresentationMessage{
		Type:   domain.MessagePresentationStateComplete,
		Action: action,
	})
}

type negotiateRequest struct {
	RequiredFields []string `json:"required_fields"`
}

func (b *Bridge) postNegotiate(w http.ResponseWriter, r *http.Request) {
	var body negotiateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		b.logger.Warn("Negotiate: Invalid request body", "err", err)
		return
	}
	if len(body.RequiredFields) == 0 {
		http.Error(w, "required_fields must not be empty", http.StatusBadRequest)
		return
	}
	fields := make([]string, len(body.RequiredFields))
	for i, f := range body.RequiredFields {
		clean, err := SanitizeInput(f, b.maxInput)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			b.logger.Warn("Negotiate: Rejected field", "err", err)
			return
		}
		fields[i] = clean
	}
	b.accept(w, domain.PresentationMessage{
		Type:           domain.MessageNegotiateData,
		RequiredFields: fields,
	})
}

func (b *Bridge) accept(w http.ResponseWriter, msg domain.PresentationMessage) {
	if err := b.Send(msg); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		b.logger.Warn("Presentation message dropped", "type", msg.Type, "err", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HistoryStep is one entry of GET /history.
type HistoryStep struct {
	Step     uint           `json:"step"`
	Priority uint           `json:"priority"`
	State    string         `json:"state"`
	Data     domain.DataBag `json:"data,omitempty"`
}

func (b *Bridge) getHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tx, err := b.history.Begin(ctx, "http-history")
	if err != nil {
		http.Error(w, fmt.Sprintf("History error: %v", err), http.StatusInternalServerError)
		b.logger.Error("History: begin failed", "err", err)
		return
	}
	defer tx.Rollback(ctx)

	entries, err := history.ReadList(tx)
	if err != nil {
		http.Error(w, fmt.Sprintf("History error: %v", err), http.StatusInternalServerError)
		b.logger.Error("History: list failed", "err", err)
		return
	}

	steps := make([]HistoryStep, 0, len(entries))
	for _, e := range entries {
		block, err := history.ReadBlock(tx, e.Step)
		if err != nil {
			http.Error(w, fmt.Sprintf("History error: %v", err), http.StatusInternalServerError)
			b.logger.Error("History: block failed", "step", e.Step, "err", err)
			return
		}
		steps = append(steps, HistoryStep{
			Step:     e.Step,
			Priority: e.Priority,
			State:    block.StateName,
			Data:     block.Data,
		})
	}
	writeJSON(w, http.StatusOK, steps, b.logger)
}

// subscribeEvents handles GET /events (SSE).
func (b *Bridge) subscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		b.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := b.streams.Subscribe()
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			b.logger.Debug("SSE client disconnected")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Response encode failed", "err", err)
	}
}
