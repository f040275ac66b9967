// Package service exposes the node's state over HTTP: stats, live peers,
// the accepted frontier, accepted blocks, cell submission, and Prometheus
// metrics.
package service

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/mr-tron/base58"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/frostnetworks/frost/src/cell"
	"github.com/frostnetworks/frost/src/node"
)

// Service wraps a node with an HTTP API.
type Service struct {
	bindAddress string
	node        *node.Node
	logger      *logrus.Entry
}

// NewService creates the HTTP service for a node.
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	return &Service{
		bindAddress: bindAddress,
		node:        n,
		logger:      logger,
	}
}

// Serve registers the handlers and blocks serving HTTP.
func (s *Service) Serve() {
	r := mux.NewRouter()
	r.HandleFunc("/stats", s.makeStatsHandler()).Methods("GET")
	r.HandleFunc("/peers", s.makePeersHandler()).Methods("GET")
	r.HandleFunc("/frontier", s.makeFrontierHandler()).Methods("GET")
	r.HandleFunc("/block/{height}", s.makeBlockHandler()).Methods("GET")
	r.HandleFunc("/submit", s.makeSubmitHandler()).Methods("POST")
	r.Handle("/metrics", promhttp.Handler())

	s.logger.WithField("bind_address", s.bindAddress).Info("service started")
	if err := http.ListenAndServe(s.bindAddress, r); err != nil {
		s.logger.WithField("error", err).Error("service stopped")
	}
}

func (s *Service) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithField("error", err).Error("encoding response")
	}
}

func (s *Service) makeStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, s.node.GetStats())
	}
}

func (s *Service) makePeersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, s.node.LivePeers())
	}
}

func (s *Service) makeFrontierHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		frontier := s.node.Frontier()
		out := make([]string, 0, len(frontier))
		for _, h := range frontier {
			out = append(out, base58.Encode(h[:]))
		}
		s.writeJSON(w, out)
	}
}

func (s *Service) makeBlockHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		height, err := strconv.ParseUint(mux.Vars(r)["height"], 10, 64)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b, ok := s.node.BlockAt(height)
		if !ok {
			http.Error(w, "height not decided", http.StatusNotFound)
			return
		}
		hash := b.Hash()
		s.writeJSON(w, map[string]interface{}{
			"hash":     base58.Encode(hash[:]),
			"height":   b.Height,
			"parent":   base58.Encode(b.Parent[:]),
			"cells":    len(b.Cells),
			"producer": b.Producer.String(),
		})
	}
}

func (s *Service) makeSubmitHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Cell []byte `json:"cell"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		c, err := cell.UnmarshalCell(body.Cell)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.node.SubmitCell(c)
		hash := c.Hash()
		s.writeJSON(w, map[string]string{"cell": base58.Encode(hash[:])})
	}
}
