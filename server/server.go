// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package server

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/cubefs/mds-sessionmap/common/kvstore"
	"github.com/cubefs/mds-sessionmap/internal/objstore"
	"github.com/cubefs/mds-sessionmap/internal/sessionmap"
)

// Config configures the single rank this process serves.
type Config struct {
	// RankOID names the backing object this rank's session map loads from
	// and saves to. Also used as the "rank" label on every metric this
	// rank emits.
	RankOID string `json:"rank_oid"`

	StoreConfig kvstore.Option `json:"store_config"`
	StorePath   string         `json:"store_path"`

	SessionMapConfig sessionmap.Config `json:"session_map_config"`

	// FinisherQueueSize bounds how many pending load/save completions the
	// Finisher will queue before Run blocks its caller.
	FinisherQueueSize int `json:"finisher_queue_size"`

	// LoadPageRPS rate-limits the paged OMAP reads issued during load.
	// Zero disables the limiter.
	LoadPageRPS float64 `json:"load_page_rps"`
}

// Server wires a backing kvstore, the Objecter adapter, and this rank's
// SessionMap together into one runnable unit.
type Server struct {
	kv       kvstore.Store
	finisher *objstore.Finisher
	engine   *objstore.KVEngine

	Map *sessionmap.SessionMap
}

// NewServer opens the backing store and constructs the rank's SessionMap.
// Callers still need to call Map.Load before serving traffic.
func NewServer(ctx context.Context, cfg *Config) (*Server, error) {
	kv, err := kvstore.NewKVStore(ctx, cfg.StorePath, kvstore.RocksdbLsmKVType, &cfg.StoreConfig)
	if err != nil {
		return nil, err
	}

	finisher := objstore.NewFinisher(cfg.FinisherQueueSize)

	var opts []objstore.KVEngineOption
	if cfg.LoadPageRPS > 0 {
		opts = append(opts, objstore.WithPageLimiter(rate.NewLimiter(rate.Limit(cfg.LoadPageRPS), 1)))
	}
	engine, err := objstore.NewKVEngine(kv, finisher, opts...)
	if err != nil {
		kv.Close()
		return nil, err
	}

	m := sessionmap.New(cfg.RankOID, engine, cfg.SessionMapConfig, sessionmap.WithRankLabel(cfg.RankOID))

	return &Server{kv: kv, finisher: finisher, engine: engine, Map: m}, nil
}

// Close releases the backing store. The SessionMap itself owns no
// resources beyond what Server already holds.
func (s *Server) Close() {
	s.kv.Close()
}
