/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Command coordinator is the query-coordinator process: it loads config,
// hydrates dataset definitions from the metastore, bootstraps cluster
// membership, brings up one Router per dataset, and serves the client-facing
// HTTP/JSON protocol (§6.3) wireproto encodes. Grounded on memcp's former
// main.go bootstrap sequence (parse config, init settings, raise the file
// descriptor limit, start listeners, register a shutdown hook).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dc0d/onexit"
	"golang.org/x/sys/unix"

	"github.com/chronoshard/qcoord/internal/aggregate"
	"github.com/chronoshard/qcoord/internal/cluster"
	"github.com/chronoshard/qcoord/internal/config"
	"github.com/chronoshard/qcoord/internal/dataset"
	"github.com/chronoshard/qcoord/internal/engine"
	"github.com/chronoshard/qcoord/internal/exec"
	"github.com/chronoshard/qcoord/internal/metastore"
	"github.com/chronoshard/qcoord/internal/plan"
	"github.com/chronoshard/qcoord/internal/router"
	"github.com/chronoshard/qcoord/internal/shardexec"
	"github.com/chronoshard/qcoord/internal/shardmap"
	"github.com/chronoshard/qcoord/internal/store"
	"github.com/chronoshard/qcoord/internal/validator"
	"github.com/chronoshard/qcoord/internal/wireproto"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config file (defaults applied if empty)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("coordinator: %v", err)
		}
		cfg = loaded
	}

	raiseFileLimit()

	backend, err := metastore.Open(cfg.Metastore.Kind, cfg.Metastore.Config)
	if err != nil {
		log.Fatalf("coordinator: opening metastore: %v", err)
	}

	reg := dataset.NewRegistry()
	if err := metastore.Hydrate(backend, reg); err != nil {
		log.Fatalf("coordinator: hydrating datasets: %v", err)
	}

	funcs := aggregate.NewRegistry()
	v := validator.New(funcs)

	col := store.NewFake() // the real column store is an external collaborator (§1); a
	// production deployment swaps this for the transport reaching the actual
	// column-store process.

	pool := exec.NewPool(cfg.Query.Parallelism * 4)

	ctx, cancel := context.WithCancel(context.Background())
	srv := newServer(ctx, reg, backend, v, col, pool, cfg)
	onexit.Register(func() {
		cancel()
		srv.drainAll()
	})

	if cfg.Cluster.SeedsURL != "" {
		seeds, err := cluster.FetchSeeds(ctx, cfg.Cluster.SeedsURL)
		if err != nil {
			log.Printf("coordinator: initial seeds fetch failed: %v", err)
		} else {
			log.Printf("coordinator: %d cluster members from %s", len(seeds.Members), cfg.Cluster.SeedsURL)
		}
	}
	if cfg.Cluster.SeedsPath != "" {
		if seeds, err := cluster.ReadSeedsFile(cfg.Cluster.SeedsPath); err != nil {
			log.Printf("coordinator: reading seeds file: %v", err)
		} else {
			log.Printf("coordinator: %d cluster members from %s", len(seeds.Members), cfg.Cluster.SeedsPath)
		}
		if cfg.Cluster.WatchSeedsFile {
			watcher, err := cluster.WatchSeedsFile(cfg.Cluster.SeedsPath, func(s cluster.Seeds) {
				log.Printf("coordinator: seeds file changed, now %d members", len(s.Members))
			})
			if err != nil {
				log.Printf("coordinator: watching seeds file: %v", err)
			} else {
				onexit.Register(func() { _ = watcher.Close() })
			}
		}
	}

	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: srv}
	go func() {
		log.Printf("coordinator: listening on %s", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("coordinator: listen: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Printf("coordinator: shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	// onexit.Exit runs every Register'd hook (draining routers, cancelling
	// ctx) before the process actually exits, the way storage/settings.go
	// relies on onexit to flush the trace file on shutdown.
	onexit.Exit(0)
}

// raiseFileLimit bumps RLIMIT_NOFILE to its hard ceiling, the way a
// scatter/gather coordinator that holds one connection per live shard request
// needs more descriptors than the default 1024 most shells set.
func raiseFileLimit() {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlimit); err != nil {
		log.Printf("coordinator: getrlimit: %v", err)
		return
	}
	rlimit.Cur = rlimit.Max
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rlimit); err != nil {
		log.Printf("coordinator: setrlimit: %v", err)
	}
}

// server wires dataset Refs to their Router, creating one lazily on first
// reference the way a real deployment brings a dataset's router up once its
// metastore entry and shard ownership are both known.
type server struct {
	ctx     context.Context
	mu      sync.Mutex
	routers map[dataset.Ref]*router.Router
	reg     *dataset.Registry
	backend metastore.Backend
	v       *validator.Validator
	store   store.ColumnStore
	pool    *exec.Pool
	cfg     config.Config
}

func newServer(ctx context.Context, reg *dataset.Registry, backend metastore.Backend, v *validator.Validator, col store.ColumnStore, pool *exec.Pool, cfg config.Config) *server {
	return &server{
		ctx:     ctx,
		routers: make(map[dataset.Ref]*router.Router),
		reg:     reg,
		backend: backend,
		v:       v,
		store:   col,
		pool:    pool,
		cfg:     cfg,
	}
}

func (s *server) drainAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.routers {
		r.Drain()
	}
}

func refFromRequest(r *http.Request) dataset.Ref {
	return dataset.Ref{Name: r.URL.Query().Get("dataset"), Database: r.URL.Query().Get("db")}
}

// routerFor returns the Router for ref, creating and starting it if this is
// the first request naming it. The new Router is Ready as soon as SetDataset
// installs the registered dataset, before its ShardMap holds any shard.
func (s *server) routerFor(ref dataset.Ref) (*router.Router, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.routers[ref]; ok {
		return r, nil
	}
	ds, err := s.reg.Get(ref)
	if err != nil {
		return nil, err
	}
	sm := shardmap.New()
	shardExec := shardexec.New(s.store, s.v)
	caller := &localCallerAdapter{ds: ds}
	eng := engine.New(caller, sm)
	r := router.New(ref, s.v, eng, shardExec, s.store, sm, s.pool)
	r.TraceDir = s.cfg.TraceArchiveDir
	caller.router = r
	r.SetDataset(ds)
	go r.Run()
	if s.cfg.Cluster.EventStreamURL != "" {
		go cluster.NewClient().RunWithRetry(s.ctx, s.cfg.Cluster.EventStreamURL, r)
	}
	s.routers[ref] = r
	return r, nil
}

// localCallerAdapter breaks the Router<->router.LocalCaller initialization
// cycle (LocalCaller needs the Router that owns it, but the Router is what
// Engine.New needs a ShardCaller for before it exists): routerFor fills in
// router right after router.New returns.
type localCallerAdapter struct {
	ds     *dataset.Dataset
	router *router.Router
}

func (c *localCallerAdapter) CallShard(ctx context.Context, shard shardmap.ShardID, localPlan plan.Physical) (any, error) {
	inner := &router.LocalCaller{Self: c.router, Dataset: c.ds}
	return inner.CallShard(ctx, shard, localPlan)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/query" && r.Method == http.MethodPost:
		s.handleQuery(w, r)
	case r.URL.Path == "/index/names" && r.Method == http.MethodGet:
		s.handleIndexNames(w, r)
	case r.URL.Path == "/index/values" && r.Method == http.MethodGet:
		s.handleIndexValues(w, r)
	case r.URL.Path == "/dataset" && r.Method == http.MethodPost:
		s.handleCreateDataset(w, r)
	case r.URL.Path == "/dataset" && r.Method == http.MethodDelete:
		s.handleDeleteDataset(w, r)
	default:
		http.NotFound(w, r)
	}
}

// handleCreateDataset registers a new dataset definition in both the
// in-process registry and the persistent metastore backend (§8 scenario 1:
// "First registration -> Success. Second -> AlreadyExists").
func (s *server) handleCreateDataset(w http.ResponseWriter, r *http.Request) {
	var ds dataset.Dataset
	if err := json.NewDecoder(r.Body).Decode(&ds); err != nil {
		http.Error(w, fmt.Sprintf("bad request body: %v", err), http.StatusBadRequest)
		return
	}
	if err := s.reg.Create(&ds); err != nil {
		if err == dataset.ErrAlreadyExists {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.backend.Save(ds.Ref, &ds); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// handleDeleteDataset removes a dataset's registration and its metastore
// record. Deleting an unregistered Ref is treated as success for idempotence
// (DESIGN.md open-question decision), not as a distinct NotFound.
func (s *server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	ref := refFromRequest(r)
	_ = s.reg.Delete(ref)
	if err := s.backend.Delete(ref); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req wireproto.PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("bad request body: %v", err), http.StatusBadRequest)
		return
	}
	lp, err := req.ToLogical()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ref := refFromRequest(r)
	router_, err := s.routerFor(ref)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	opts := router.DefaultQueryOptions()
	if v := r.URL.Query().Get("timeoutSecs"); v != "" {
		var secs int
		if _, err := fmt.Sscanf(v, "%d", &secs); err == nil && secs > 0 {
			opts.QueryTimeout = time.Duration(secs) * time.Second
		}
	}
	reply, err := router_.Send(r.Context(), router.LogicalPlanQuery{Ref: ref, Plan: lp, Options: opts})
	if err != nil {
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
		return
	}
	writeJSON(w, wireproto.FromReply(reply))
}

func (s *server) handleIndexNames(w http.ResponseWriter, r *http.Request) {
	ref := refFromRequest(r)
	router_, err := s.routerFor(ref)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	reply, err := router_.Send(r.Context(), router.GetIndexNames{Ref: ref, Limit: 1000})
	if err != nil {
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
		return
	}
	writeJSON(w, wireproto.FromReply(reply))
}

func (s *server) handleIndexValues(w http.ResponseWriter, r *http.Request) {
	ref := refFromRequest(r)
	router_, err := s.routerFor(ref)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	reply, err := router_.Send(r.Context(), router.GetIndexValues{Ref: ref, Index: r.URL.Query().Get("index"), Limit: 1000})
	if err != nil {
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
		return
	}
	writeJSON(w, wireproto.FromReply(reply))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
