/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/uptimeguard/monitorcore/internal/alerting"
	"github.com/uptimeguard/monitorcore/internal/api"
	"github.com/uptimeguard/monitorcore/internal/config"
	"github.com/uptimeguard/monitorcore/internal/coreapi"
	"github.com/uptimeguard/monitorcore/internal/lifecycle"
	"github.com/uptimeguard/monitorcore/internal/logging"
	"github.com/uptimeguard/monitorcore/internal/probe"
	"github.com/uptimeguard/monitorcore/internal/pubsub"
	"github.com/uptimeguard/monitorcore/internal/queue"
	"github.com/uptimeguard/monitorcore/internal/reliability"
	"github.com/uptimeguard/monitorcore/internal/retention"
	"github.com/uptimeguard/monitorcore/internal/scheduler"
	"github.com/uptimeguard/monitorcore/internal/store"
	"github.com/uptimeguard/monitorcore/internal/workerpool"
)

func main() {
	flags := pflag.NewFlagSet("monitorcore", pflag.ExitOnError)
	config.BindFlags(flags)
	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "failed to parse flags:", err)
		os.Exit(1)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}

	_, log := logging.Init(cfg.LogLevel)
	if cfg.ConfigFileUsed() != "" {
		log.Info("configuration loaded", "file", cfg.ConfigFileUsed())
	} else {
		log.Info("no config file found, using defaults, flags, and environment")
	}

	instanceID := fmt.Sprintf("%d-%d", time.Now().UnixNano(), rand.Int())

	dataStore, err := buildStore(cfg)
	if err != nil {
		log.Error(err, "unable to create store")
		os.Exit(1)
	}
	if err := dataStore.Init(); err != nil {
		log.Error(err, "unable to initialize store")
		os.Exit(1)
	}
	defer func() { _ = dataStore.Close() }()
	log.Info("initialized store", "type", cfg.Storage.Type)

	jobQueue, err := queue.Open(cfg.Queue.BoltPath, "probes", "alerts")
	if err != nil {
		log.Error(err, "unable to open work queue")
		os.Exit(1)
	}
	defer func() { _ = jobQueue.Close() }()
	log.Info("initialized work queue", "path", cfg.Queue.BoltPath)

	tracker := reliability.New()
	engine := probe.NewEngine()
	broadcaster := pubsub.NewBroadcaster()

	alertDispatcher, err := alerting.New(dataStore, jobQueue, tracker, cfg.Alerting, cfg.SMTP, cfg.Timezone, log.WithName("alerting"))
	if err != nil {
		log.Error(err, "unable to create alert dispatcher")
		os.Exit(1)
	}

	sched := scheduler.New(dataStore, jobQueue, tracker, cfg.Timezone, instanceID, log.WithName("scheduler"))

	pool := workerpool.New(dataStore, jobQueue, engine, tracker, broadcaster, alertDispatcher, workerpool.Config{
		Concurrency:     cfg.Worker.Concurrency,
		RateLimitPerSec: cfg.Worker.RateLimitPerSec,
	}, log.WithName("workerpool"))

	sweeper, err := retention.New(dataStore, jobQueue, instanceID, cfg.Timezone, log.WithName("retention"))
	if err != nil {
		log.Error(err, "unable to create retention sweeper")
		os.Exit(1)
	}

	core := coreapi.New(dataStore, engine, tracker, broadcaster, log.WithName("coreapi"))
	apiServer := api.NewServer(dataStore, core, cfg.API.BindAddress, log.WithName("api"))

	mgr := lifecycle.New(log)
	mgr.Add(tracker)
	mgr.Add(sched)
	mgr.Add(pool)
	mgr.Add(alertDispatcher)
	mgr.Add(sweeper)
	mgr.Add(apiServer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting monitorcore", "instance_id", instanceID)
	if err := mgr.Start(ctx); err != nil && ctx.Err() == nil {
		log.Error(err, "monitorcore exited with error")
		os.Exit(1)
	}
	log.Info("monitorcore stopped")
}

func buildStore(cfg *config.Config) (store.Store, error) {
	maxIdle, maxOpen, maxLifetime, maxIdleTime := cfg.StorePoolConfig()
	return store.NewStore(store.StorageConfig{
		Type:       cfg.Storage.Type,
		SQLitePath: cfg.Storage.SQLitePath,
		Host:       cfg.Storage.Host,
		Port:       cfg.Storage.Port,
		Database:   cfg.Storage.Database,
		User:       cfg.Storage.User,
		Password:   cfg.Storage.Password,
		SSLMode:    cfg.Storage.SSLMode,
		Pool: store.ConnectionPoolConfig{
			MaxIdleConns:    maxIdle,
			MaxOpenConns:    maxOpen,
			ConnMaxLifetime: maxLifetime,
			ConnMaxIdleTime: maxIdleTime,
		},
	})
}
