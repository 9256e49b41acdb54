// Package devicetest provides a scriptable fake printer backend for tests.
//
// The server speaks the same six endpoints as a real printer. Tests set the
// current status payload, push stream events, flip endpoints into failure
// mode, and inspect which control commands were received.
package devicetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/facetui/facet/internal/device"
)

// Server is a fake printer backend bound to an httptest.Server.
type Server struct {
	HTTP *httptest.Server

	mu        sync.Mutex
	status    device.RawStatus
	rawBody   []byte // overrides status when set, for malformed payloads
	failing   map[string]bool
	commands  []string
	thumbnail []byte
	thumbErr  bool

	upgrader websocket.Upgrader
	streams  []*websocket.Conn
}

// New starts a fake printer serving defaults: an Idle status, no thumbnail,
// all endpoints healthy. Callers own Close.
func New() *Server {
	s := &Server{
		status:  device.RawStatus{Status: "Idle"},
		failing: make(map[string]bool),
	}

	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/status/stream", s.handleStream).Methods(http.MethodGet)
	r.HandleFunc("/pause", s.handleCommand("pause")).Methods(http.MethodPost)
	r.HandleFunc("/resume", s.handleCommand("resume")).Methods(http.MethodPost)
	r.HandleFunc("/cancel", s.handleCommand("cancel")).Methods(http.MethodPost)
	r.HandleFunc("/thumbnail", s.handleThumbnail).Methods(http.MethodGet)

	s.HTTP = httptest.NewServer(r)
	return s
}

// Close shuts down the server and any open stream connections.
func (s *Server) Close() {
	s.mu.Lock()
	for _, conn := range s.streams {
		_ = conn.Close()
	}
	s.streams = nil
	s.mu.Unlock()
	s.HTTP.Close()
}

// URL returns the backend address in host:port form.
func (s *Server) URL() string {
	return s.HTTP.URL
}

// SetStatus replaces the payload served by /status.
func (s *Server) SetStatus(status device.RawStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.rawBody = nil
}

// SetRawStatusBody makes /status serve an arbitrary body, for exercising
// malformed payload handling.
func (s *Server) SetRawStatusBody(body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawBody = body
}

// SetFailing flips one endpoint path (e.g. "/pause") into returning 500.
func (s *Server) SetFailing(path string, failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[path] = failing
}

// SetThumbnail configures the /thumbnail response body.
func (s *Server) SetThumbnail(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thumbnail = data
	s.thumbErr = false
}

// FailThumbnail makes /thumbnail return 500.
func (s *Server) FailThumbnail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thumbErr = true
}

// Commands returns the control commands received so far, in order.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}

// PushStreamEvent sends a payload on every open stream connection.
func (s *Server) PushStreamEvent(status device.RawStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.streams {
		_ = conn.WriteJSON(status)
	}
}

// PushStreamRaw sends an arbitrary text message on every open stream
// connection, for exercising per-event decode failures.
func (s *Server) PushStreamRaw(body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.streams {
		_ = conn.WriteMessage(websocket.TextMessage, body)
	}
}

// CloseStreams drops every open stream connection, simulating a
// server-initiated close.
func (s *Server) CloseStreams() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.streams {
		_ = conn.Close()
	}
	s.streams = nil
}

// StreamCount reports how many stream connections are currently open.
func (s *Server) StreamCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	failing := s.failing["/status"]
	raw := s.rawBody
	status := s.status
	s.mu.Unlock()

	if failing {
		http.Error(w, "unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if raw != nil {
		_, _ = w.Write(raw)
		return
	}
	_ = json.NewEncoder(w).Encode(status)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	failing := s.failing["/status/stream"]
	s.mu.Unlock()
	if failing {
		http.Error(w, "unavailable", http.StatusInternalServerError)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.streams = append(s.streams, conn)
	s.mu.Unlock()

	// Drain client frames so control messages are processed; the fake
	// never expects meaningful input. Deregister once the peer goes away
	// so StreamCount reflects live connections.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.dropStream(conn)
				return
			}
		}
	}()
}

func (s *Server) dropStream(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.streams {
		if c == conn {
			s.streams = append(s.streams[:i], s.streams[i+1:]...)
			break
		}
	}
}

func (s *Server) handleCommand(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		failing := s.failing["/"+name]
		if !failing {
			s.commands = append(s.commands, name)
		}
		s.mu.Unlock()

		if failing {
			http.Error(w, "command rejected", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	data := s.thumbnail
	fail := s.thumbErr
	s.mu.Unlock()

	if fail {
		http.Error(w, "thumbnail unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(data)
}
