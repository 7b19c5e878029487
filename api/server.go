// Copyright 2025 The Private-Blockchain Authors
// This file is part of the Private-Blockchain library.
//
// The Private-Blockchain library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The Private-Blockchain library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the Private-Blockchain library. If not, see <http://www.gnu.org/licenses/>.

// Package api exposes the ledger core over HTTP. The router is a thin
// adapter: every handler validates, delegates to a core component and wraps
// the result in the {data:...} / {error:{message, details?}} envelope.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/muuduuu/Private-Blockchain/audit"
	"github.com/muuduuu/Private-Blockchain/chain"
	"github.com/muuduuu/Private-Blockchain/core/mempool"
	"github.com/muuduuu/Private-Blockchain/core/priority"
	"github.com/muuduuu/Private-Blockchain/directory"
	"github.com/muuduuu/Private-Blockchain/storage"
	"github.com/muuduuu/Private-Blockchain/wallet"
)

// DefaultPrefix mounts the API when no prefix is configured.
const DefaultPrefix = "/api"

// Request bodies larger than this are rejected.
const maxBodyBytes = 1 << 20

// Server read/write deadlines surfaced to clients.
const (
	readTimeout  = 10 * time.Second
	writeTimeout = 12 * time.Second
)

// Config carries the HTTP-level knobs.
type Config struct {
	Prefix    string
	Version   string
	NetworkID string
}

// Deps are the core components the handlers delegate to.
type Deps struct {
	Pool      *mempool.Pool
	Engine    *priority.Engine
	Audit     *audit.Log
	Auth      *wallet.Auth
	Registry  *wallet.Registry
	Directory *directory.Directory
	Chain     *chain.View
	Txs       storage.TransactionStore
	Stats     *directory.StatsSource
}

// Server is the HTTP front of the node.
type Server struct {
	cfg       Config
	deps      Deps
	handler   http.Handler
	srv       *http.Server
	log       log.Logger
	startedAt time.Time
}

// NewServer builds the router and wraps it with CORS.
func NewServer(cfg Config, deps Deps) *Server {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	cfg.Prefix = "/" + strings.Trim(cfg.Prefix, "/")

	s := &Server{
		cfg:       cfg,
		deps:      deps,
		log:       log.New("module", "api"),
		startedAt: time.Now().UTC(),
	}

	r := mux.NewRouter()
	sub := r.PathPrefix(cfg.Prefix).Subrouter()
	sub.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	sub.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	sub.HandleFunc("/reference/providers", s.handleProviders).Methods(http.MethodGet)
	sub.HandleFunc("/reference/patients", s.handlePatients).Methods(http.MethodGet)
	sub.HandleFunc("/reference/validators", s.handleValidators).Methods(http.MethodGet)
	sub.HandleFunc("/transactions", s.handleListTransactions).Methods(http.MethodGet)
	sub.HandleFunc("/transactions", s.handleSubmitTransaction).Methods(http.MethodPost)
	sub.HandleFunc("/audit", s.handleAuditQuery).Methods(http.MethodGet)
	sub.HandleFunc("/audit/export", s.handleAuditExport).Methods(http.MethodGet)
	sub.HandleFunc("/wallet/challenge", s.handleWalletChallenge).Methods(http.MethodPost)
	sub.HandleFunc("/wallet/verify", s.handleWalletVerify).Methods(http.MethodPost)

	s.handler = cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(r)
	return s
}

// Handler returns the routed handler; tests mount it on httptest servers.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves on addr until Stop or a listener failure.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	s.log.Info("HTTP server listening", "addr", addr, "prefix", s.cfg.Prefix)
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

type errorBody struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, map[string]interface{}{"data": data})
}

func writeError(w http.ResponseWriter, status int, message string, details interface{}) {
	writeJSON(w, status, map[string]interface{}{
		"error": errorBody{Message: message, Details: details},
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return false
	}
	return true
}
