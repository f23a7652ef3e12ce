// Package server exposes the control plane over HTTP and websockets. Every
// handler only publishes onto the control bus; the frame loop owns the
// store, the pipeline and the device.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/ledmatrix/internal/control"
	"github.com/coreman2200/ledmatrix/internal/diagnostics"
	"github.com/coreman2200/ledmatrix/internal/layout"
	"github.com/coreman2200/ledmatrix/internal/led"
	"github.com/coreman2200/ledmatrix/internal/pipeline"
	"github.com/coreman2200/ledmatrix/internal/render"
)

// MaxBody bounds request bodies; image data is the largest payload.
const MaxBody = 4 << 20

const writeWait = 200 * time.Millisecond

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// Status is what the frame loop last reported.
type Status struct {
	Frame       uint64       `json:"frame"`
	Fingerprint string       `json:"fingerprint"`
	Engine      render.Stats `json:"engine"`
	Last        any          `json:"last,omitempty"`
	Sync        led.Stats    `json:"sync"`
}

type Options struct {
	Layout layout.Layout
	Driver string
	// Builder pre-validates set_config documents so bad ones get a 400.
	// Nil skips the check; the frame loop still rejects them.
	Builder *pipeline.Builder
	// PreviewEvery sends one frame in N to /preview clients.
	PreviewEvery int
}

type Server struct {
	bus   *control.Bus
	hub   *diagnostics.Hub
	opts  Options
	id    uuid.UUID
	start time.Time

	mu      sync.RWMutex
	status  Status
	clients map[*websocket.Conn]bool

	frameMu sync.Mutex
	frame   []byte
	frameID uint64
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func New(bus *control.Bus, hub *diagnostics.Hub, o Options) *Server {
	if o.PreviewEvery < 1 {
		o.PreviewEvery = 1
	}
	s := &Server{
		bus:     bus,
		hub:     hub,
		opts:    o,
		id:      uuid.New(),
		start:   time.Now(),
		clients: map[*websocket.Conn]bool{},
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go s.previewLoop()
	return s
}

func (s *Server) ID() uuid.UUID { return s.id }

// Handler routes every endpoint behind permissive CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	for _, k := range control.Kinds() {
		mux.HandleFunc("/"+string(k), s.handleOp(string(k)))
	}
	mux.HandleFunc("/health", s.HandleHealth)
	mux.HandleFunc("/stats", s.HandleStats)
	mux.HandleFunc("/preview", s.HandlePreviewWS)
	mux.HandleFunc("/diag", s.HandleDiagWS)
	mux.HandleFunc("/control", s.HandleControlWS)
	return withCORS(mux)
}

// Close stops the preview broadcaster and drops websocket clients.
func (s *Server) Close() {
	s.once.Do(func() { close(s.done) })
	s.mu.Lock()
	for c := range s.clients {
		c.Close()
		delete(s.clients, c)
	}
	s.mu.Unlock()
}

// SetStatus records the frame loop's latest counters for /stats.
func (s *Server) SetStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// submit decodes and queues one op. It never touches the frame loop.
func (s *Server) submit(op string, body []byte, source string) (control.Event, error) {
	ev, err := control.Decode(op, body)
	if err != nil {
		return ev, err
	}
	if ev.Kind == control.KindConfig && s.opts.Builder != nil {
		if _, err := s.opts.Builder.Build(ev.Document); err != nil {
			return ev, err
		}
	}
	ev.Source = source
	return ev, s.bus.Publish(ev)
}

func (s *Server) handleOp(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "POST only"})
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBody))
		if err != nil {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"error": err.Error()})
			return
		}
		if _, err := s.submit(op, body, "http"); err != nil {
			code := http.StatusBadRequest
			if errors.Is(err, control.ErrBusClosed) {
				code = http.StatusServiceUnavailable
			}
			log.Debug().Err(err).Str("op", op).Msg("rejected")
			writeJSON(w, code, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"queued": op})
	}
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"instance": s.id.String(),
		"uptime_s": time.Since(s.start).Seconds(),
		"driver":   s.opts.Driver,
		"count":    s.opts.Layout.Count(),
		"frame":    s.status.Frame,
	})
}

func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	st := s.status
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      st,
		"bus":         s.bus.Stats(),
		"diagnostics": s.hub.Recent(),
	})
}

func (s *Server) HandleDiagWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ch, cancel := s.hub.Subscribe(32)
	go func() {
		// reader: only notices the close
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	go func() {
		defer conn.Close()
		for _, d := range s.hub.Recent() {
			if err := writeWS(conn, d); err != nil {
				return
			}
		}
		for {
			select {
			case d, ok := <-ch:
				if !ok {
					return
				}
				if err := writeWS(conn, d); err != nil {
					return
				}
			case <-s.done:
				return
			}
		}
	}()
}

type controlMsg struct {
	Op   string          `json:"op"`
	Body json.RawMessage `json:"body"`
}

type controlReply struct {
	Op    string `json:"op"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// HandleControlWS accepts {"op": ..., "body": ...} messages and answers
// each with a controlReply.
func (s *Server) HandleControlWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(MaxBody)
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg controlMsg
		reply := controlReply{OK: true}
		if err := json.Unmarshal(data, &msg); err != nil {
			reply.OK, reply.Error = false, err.Error()
		} else {
			reply.Op = msg.Op
			if _, err := s.submit(msg.Op, msg.Body, "ws"); err != nil {
				reply.OK, reply.Error = false, err.Error()
			}
		}
		if err := writeWS(conn, reply); err != nil {
			return
		}
	}
}

func writeWS(c *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.WriteMessage(websocket.TextMessage, b)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.ServeHTTP(w, r)
	})
}
