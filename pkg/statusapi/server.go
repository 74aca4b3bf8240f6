// Package statusapi exposes a read-only HTTP surface over the coordination
// core: GET /status, GET /peers, GET /metrics. It never mutates session
// state; /status and /peers answer from a snapshot taken through
// spv.NodeStatusRequest and spv.PeerManager.GetPeers respectively, both of
// which are safe to call without going through the dispatcher's channel
// for /peers (the peer manager already serializes its own state) and
// strictly through it for /status (session-internal counters).
package statusapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/btcspv/spvnode/pkg/spv"
)

// replyTimeout bounds how long a status request will wait on the
// dispatcher before answering 503; the dispatcher loop never legitimately
// takes this long to drain a single request.
const replyTimeout = 2 * time.Second

// Server serves the status/inspection API.
type Server struct {
	dispatcher *spv.Dispatcher
	peers      spv.PeerManager
	registry   *prometheus.Registry
	log        spv.Logger
	httpServer *http.Server
}

// Config groups Server construction parameters.
type Config struct {
	Addr           string
	Dispatcher     *spv.Dispatcher
	Peers          spv.PeerManager
	Registry       *prometheus.Registry
	AllowedOrigins []string
	Log            spv.Logger
}

// NewServer builds a Server; call ListenAndServe to start it.
func NewServer(cfg Config) *Server {
	s := &Server{
		dispatcher: cfg.Dispatcher,
		peers:      cfg.Peers,
		registry:   cfg.Registry,
		log:        cfg.Log,
	}

	router := mux.NewRouter()
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/peers", s.handlePeers).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	handler := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet},
	}).Handler(router)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving the status API until it fails or is shut
// down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown() error {
	return s.httpServer.Shutdown(context.Background())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	reply := make(chan spv.NodeStatus, 1)
	s.dispatcher.Post(spv.NodeStatusRequest{Reply: reply})

	select {
	case status := <-reply:
		writeJSON(w, http.StatusOK, status)
	case <-time.After(replyTimeout):
		http.Error(w, "status request timed out", http.StatusServiceUnavailable)
	}
}

type peerView struct {
	ID         string `json:"id"`
	Height     int32  `json:"height"`
	Handshaked bool   `json:"handshaked"`
	UserAgent  string `json:"user_agent"`
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	handles := s.peers.GetPeers()
	out := make([]peerView, 0, len(handles))
	for _, ph := range handles {
		out = append(out, peerView{
			ID:         string(ph.ID),
			Height:     ph.Data.Height,
			Handshaked: ph.Data.Handshaked,
			UserAgent:  ph.Data.UserAgent,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
