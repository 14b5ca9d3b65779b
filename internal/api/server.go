// Package api exposes registry control and MJPEG streaming over HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bryanchriswhite/CamStreamer/internal/acquire"
	"github.com/bryanchriswhite/CamStreamer/internal/logger"
	"github.com/bryanchriswhite/CamStreamer/internal/notify"
	"github.com/bryanchriswhite/CamStreamer/internal/registry"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Server represents the HTTP API server.
type Server struct {
	router   *mux.Router
	registry *registry.Registry
	upgrader websocket.Upgrader
}

// NewServer creates a new API server over the given registry.
func NewServer(reg *registry.Registry) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		registry: reg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // allow all origins for development
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes.
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Device state and control
	api.HandleFunc("/devices", s.handleGetDevices).Methods("GET")
	api.HandleFunc("/devices/{name}", s.handleGetDevice).Methods("GET")
	api.HandleFunc("/devices/{name}/start", s.deviceAction((*registry.Registry).StartOnly)).Methods("POST")
	api.HandleFunc("/devices/{name}/stop", s.deviceAction((*registry.Registry).StopOnly)).Methods("POST")
	api.HandleFunc("/devices/{name}/pause", s.deviceAction((*registry.Registry).PauseOnly)).Methods("POST")
	api.HandleFunc("/devices/{name}/resume", s.deviceAction((*registry.Registry).ResumeOnly)).Methods("POST")
	api.HandleFunc("/devices/{name}/rate", s.handleSetRate).Methods("PUT")
	api.HandleFunc("/devices/{name}/frame", s.handleSnapshot).Methods("GET")

	// Bulk control
	api.HandleFunc("/registry/start", s.bulkAction((*registry.Registry).StartAll)).Methods("POST")
	api.HandleFunc("/registry/stop", s.bulkAction((*registry.Registry).StopAll)).Methods("POST")
	api.HandleFunc("/registry/pause", s.bulkAction((*registry.Registry).PauseAll)).Methods("POST")
	api.HandleFunc("/registry/resume", s.bulkAction((*registry.Registry).ResumeAll)).Methods("POST")

	// Event push
	api.HandleFunc("/events", s.handleEvents)

	// Health check
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// MJPEG streams
	s.router.HandleFunc("/stream/{name}", s.handleStream).Methods("GET")
}

// Start starts the HTTP server.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	logger.WithComponent("api").Info().Str("addr", addr).Msg("HTTP server starting")
	return http.ListenAndServe(addr, s.enableCORS(s.router))
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// enableCORS adds CORS headers.
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// deviceStatus is the wire form of one device's state.
type deviceStatus struct {
	Name   string        `json:"name"`
	Source string        `json:"source"`
	State  string        `json:"state"`
	Stats  acquire.Stats `json:"stats"`
}

func (s *Server) status(loop *acquire.Loop) deviceStatus {
	return deviceStatus{
		Name:   loop.Name(),
		Source: loop.Config().Source,
		State:  loop.State().String(),
		Stats:  loop.Stats(),
	}
}

// HTTP handlers

func (s *Server) handleGetDevices(w http.ResponseWriter, r *http.Request) {
	statuses := make([]deviceStatus, 0, s.registry.Len())
	for _, name := range s.registry.Names() {
		if loop := s.registry.Device(name); loop != nil {
			statuses = append(statuses, s.status(loop))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statuses)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	loop := s.registry.Device(mux.Vars(r)["name"])
	if loop == nil {
		http.Error(w, "unknown device", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.status(loop))
}

// deviceAction wraps a single-target registry operation as a handler.
func (s *Server) deviceAction(op func(*registry.Registry, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		if s.registry.Device(name) == nil {
			http.Error(w, "unknown device", http.StatusNotFound)
			return
		}
		op(s.registry, name)
		w.WriteHeader(http.StatusNoContent)
	}
}

// bulkAction wraps a registry-wide operation as a handler.
func (s *Server) bulkAction(op func(*registry.Registry)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		op(s.registry)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleSetRate(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if s.registry.Device(name) == nil {
		http.Error(w, "unknown device", http.StatusNotFound)
		return
	}

	var body struct {
		FPS float64 `json:"fps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.registry.SetSpeedOnly(name, body.FPS)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithComponent("api").Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	events := make(chan string, 16)
	unsub := s.registry.Subscribe(notify.EventFrameAvailable, func(p notify.Payload) {
		select {
		case events <- p.Device:
		default:
			// slow client, skip this event
		}
	})
	defer unsub()

	// drain reads so we notice the peer going away
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	type event struct {
		Event  string    `json:"event"`
		Device string    `json:"device"`
		Time   time.Time `json:"time"`
	}

	for {
		select {
		case <-done:
			return
		case device := <-events:
			if err := conn.WriteJSON(event{Event: string(notify.EventFrameAvailable), Device: device, Time: time.Now()}); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"devices": s.registry.Len(),
	})
}
