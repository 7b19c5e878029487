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

package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/muuduuu/Private-Blockchain/api"
	"github.com/muuduuu/Private-Blockchain/audit"
	"github.com/muuduuu/Private-Blockchain/chain"
	"github.com/muuduuu/Private-Blockchain/core/mempool"
	"github.com/muuduuu/Private-Blockchain/core/priority"
	"github.com/muuduuu/Private-Blockchain/directory"
	"github.com/muuduuu/Private-Blockchain/storage"
	"github.com/muuduuu/Private-Blockchain/storage/filestore"
	"github.com/muuduuu/Private-Blockchain/storage/pgstore"
	"github.com/muuduuu/Private-Blockchain/wallet"
)

// Version is the release string reported by /health and the CLI.
const Version = "1.0.0"

const (
	sweepInterval   = time.Minute
	shutdownTimeout = 5 * time.Second
)

// Node is the assembled ledger stack.
type Node struct {
	cfg   Config
	store storage.Store

	pool     *mempool.Pool
	engine   *priority.Engine
	audit    *audit.Log
	registry *wallet.Registry
	auth     *wallet.Auth
	dir      *directory.Directory
	chain    *chain.View
	server   *api.Server

	log   log.Logger
	quit  chan struct{}
	errCh chan error
	wg    sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// New opens storage (Postgres when DATABASE_URL is set, the file store
// otherwise), seeds the reference directory and wires the subsystems. The
// audit tail and the mempool snapshot are rehydrated here; failures at this
// stage are fatal to the caller.
func New(cfg Config) (*Node, error) {
	logger := log.New("module", "node")

	var store storage.Store
	var err error
	if cfg.DatabaseURL != "" {
		store, err = pgstore.Open(cfg.DatabaseURL)
	} else {
		store, err = filestore.Open(cfg.DataRoot)
	}
	if err != nil {
		return nil, err
	}

	n := &Node{
		cfg:   cfg,
		store: store,
		log:   logger,
		quit:  make(chan struct{}),
		errCh: make(chan error, 1),
	}

	n.dir = directory.New(store)
	if _, err := n.dir.EnsureSeed(); err != nil {
		store.Close()
		return nil, fmt.Errorf("node: seeding reference directory: %w", err)
	}

	n.pool = mempool.New(store)
	stats := directory.NewStatsSource(n.dir, n.pool)
	n.engine = priority.NewEngine(stats)

	n.audit, err = audit.New(store, audit.Config{
		RetentionDays: cfg.AuditRetentionDays,
		MaxLogBytes:   cfg.AuditLogMaxBytes,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	n.registry = wallet.NewRegistry(store)
	n.auth = wallet.NewAuth(n.registry, store, nil,
		time.Duration(cfg.WalletNonceTTLSeconds)*time.Second)
	n.chain = chain.NewView(store, store, n.pool)

	if addr := cfg.DemoExternalSignerAddress; addr != "" {
		if _, err := n.registry.Register(wallet.RegisterInput{
			Address: addr,
			Label:   "demo wallet",
		}); err != nil {
			logger.Warn("Demo wallet bootstrap failed", "address", addr, "err", err)
		}
	}

	n.server = api.NewServer(api.Config{
		Prefix:    cfg.APIPrefix,
		Version:   Version,
		NetworkID: cfg.NetworkID,
	}, api.Deps{
		Pool:      n.pool,
		Engine:    n.engine,
		Audit:     n.audit,
		Auth:      n.auth,
		Registry:  n.registry,
		Directory: n.dir,
		Chain:     n.chain,
		Txs:       store,
		Stats:     stats,
	})
	return n, nil
}

// Start launches the HTTP server and the background sweeps.
func (n *Node) Start() {
	n.startOnce.Do(func() {
		n.wg.Add(1)
		go n.sweepLoop()
		go func() {
			addr := fmt.Sprintf(":%d", n.cfg.Port)
			if err := n.server.Start(addr); err != nil {
				n.errCh <- err
			}
			close(n.errCh)
		}()
		n.log.Info("Node started", "network", n.cfg.NetworkID, "port", n.cfg.Port)
	})
}

// Wait blocks until the HTTP server exits and returns its error, if any.
func (n *Node) Wait() error {
	return <-n.errCh
}

// sweepLoop runs the periodic housekeeping: expired nonce cleanup and the
// audit retention/rotation pass. Best effort; each pass logs and continues.
func (n *Node) sweepLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			n.auth.SweepExpired(now.UTC())
			n.audit.Sweep(now.UTC())
		case <-n.quit:
			return
		}
	}
}

// Close stops the sweeps, drains the HTTP server and closes storage, in
// that order.
func (n *Node) Close() error {
	var err error
	n.stopOnce.Do(func() {
		close(n.quit)
		n.wg.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := n.server.Stop(ctx); serr != nil {
			err = serr
		}
		if cerr := n.store.Close(); cerr != nil && err == nil {
			err = cerr
		}
		n.log.Info("Node stopped")
	})
	return err
}
