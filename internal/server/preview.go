package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
)

// PreviewFrame is one binary websocket message on /preview. RGB is row
// major over (x, y) with x fastest, independent of the wiring.
type PreviewFrame struct {
	T           int64  `msgpack:"t"`
	FrameID     uint64 `msgpack:"frame_id"`
	LEDCount    int    `msgpack:"led_count"`
	StringCount int    `msgpack:"string_count"`
	RGB         []byte `msgpack:"rgb"`
}

// PublishFrame offers a flushed framebuffer to preview clients. It copies fb
// and returns at once; frames arriving faster than they are sent replace
// each other.
func (s *Server) PublishFrame(frameID uint64, fb []byte) {
	if frameID%uint64(s.opts.PreviewEvery) != 0 {
		return
	}
	s.mu.RLock()
	n := len(s.clients)
	s.mu.RUnlock()
	if n == 0 {
		return
	}
	s.frameMu.Lock()
	s.frame = append(s.frame[:0], fb...)
	s.frameID = frameID
	s.frameMu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Server) previewLoop() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		b, err := s.encodePreview()
		if err != nil {
			log.Debug().Err(err).Msg("encode preview")
			continue
		}
		s.broadcast(b)
	}
}

func (s *Server) encodePreview() ([]byte, error) {
	l := s.opts.Layout
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	pf := PreviewFrame{
		T:           time.Now().UnixNano(),
		FrameID:     s.frameID,
		LEDCount:    l.LEDCount,
		StringCount: l.StringCount,
		RGB:         make([]byte, 0, l.FrameBytes()),
	}
	if len(s.frame) >= l.FrameBytes() {
		for y := 0; y < l.StringCount; y++ {
			for x := 0; x < l.LEDCount; x++ {
				c := l.At(s.frame, x, y)
				pf.RGB = append(pf.RGB, c.R, c.G, c.B)
			}
		}
	}
	return msgpack.Marshal(&pf)
}

func (s *Server) broadcast(b []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.BinaryMessage, b); err != nil {
			log.Debug().Err(err).Msg("write preview")
		}
	}
}

func (s *Server) HandlePreviewWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
