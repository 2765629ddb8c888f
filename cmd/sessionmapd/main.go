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

package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/cubefs/cubefs/blobstore/common/config"
	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/cubefs/cubefs/blobstore/util/log"

	"github.com/cubefs/mds-sessionmap/server"
)

// Config is the daemon's top-level JSON configuration.
type Config struct {
	server.Config

	HttpBindPort uint32    `json:"http_bind_port"`
	LogLevel     log.Level `json:"log_level"`
}

func main() {
	config.Init("f", "", "sessionmapd.json")

	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		log.Fatal(errors.Detail(err))
	}
	initConfig(cfg)
	log.SetOutputLevel(cfg.LogLevel)

	span, ctx := trace.StartSpanFromContext(context.Background(), "startup")

	srv, err := server.NewServer(ctx, &cfg.Config)
	if err != nil {
		log.Fatalf("starting server failed: %s", err)
	}

	loaded := make(chan struct{})
	srv.Map.Load(ctx, func(error) { close(loaded) })
	<-loaded
	span.Infof("sessionmap %s loaded, version=%d", cfg.RankOID, srv.Map.Version())

	httpServer := server.NewHttpServer(srv)
	httpServer.Serve(":" + strconv.Itoa(int(cfg.HttpBindPort)))

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
	<-ch

	httpServer.Stop()
	srv.Close()
}

func initConfig(cfg *Config) {
	if cfg.RankOID == "" {
		cfg.RankOID = "mds0_sessionmap"
	}
	if cfg.StorePath == "" {
		cfg.StorePath = "./run/store"
	}
	if cfg.HttpBindPort == 0 {
		cfg.HttpBindPort = 9999
	}
}
