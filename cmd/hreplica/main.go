// Package main is a cluster replica: it mirrors the master's scene and
// draws it, or only mirrors it when headless.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Faultbox/hsync/internal/config"
	"github.com/Faultbox/hsync/internal/export"
	"github.com/Faultbox/hsync/internal/logger"
	"github.com/Faultbox/hsync/internal/material"
	"github.com/Faultbox/hsync/internal/mirror"
	"github.com/Faultbox/hsync/internal/network"
	"github.com/Faultbox/hsync/internal/replication"
)

func main() {
	flags := config.RegisterFlags(flag.CommandLine)
	flag.Parse()

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("=== hsync replica ===", zap.String("name", cfg.Cluster.Name))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("replica stopped", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("replica closed normally")
}

// replica is the state shared by the headless and windowed loops.
type replica struct {
	cfg      *config.Config
	client   *network.Client
	store    *material.Store
	mirror   *replication.Replica
	follower *network.Follower
	exporter *export.Exporter
}

func run(ctx context.Context, cfg *config.Config) error {
	client, err := network.Dial(ctx, cfg.Cluster.MasterURL, cfg.Cluster.Name, logger.Named("client"))
	if err != nil {
		return err
	}
	defer client.Close()

	store := material.NewStore(logger.Named("materials"))
	r := &replica{
		cfg:      cfg,
		client:   client,
		store:    store,
		mirror:   replication.NewReplica(mirror.NewScene(), store, logger.Named("replica")),
		exporter: export.New(store, logger.Named("export")),
	}
	r.follower = network.NewFollower(client, r.mirror, logger.Named("follower"))

	if cfg.Display.Headless {
		err = r.headless(ctx)
	} else {
		err = r.windowed(ctx)
	}
	if err != nil && !errors.Is(err, network.ErrClosed) {
		return err
	}
	if err != nil {
		logger.Info("master went away", zap.Error(err))
	}
	if cfg.Export.GLTFPath != "" {
		return r.snapshot()
	}
	return nil
}

func (r *replica) headless(ctx context.Context) error {
	log := logger.Named("replica")
	return r.follower.Run(ctx, func(res replication.Result) {
		log.Debug("frame applied", zap.Uint32("seq", res.Seq), zap.Bool("full", res.Full()),
			zap.Int("published", res.Published), zap.Strings("released", res.Released))
	})
}

func (r *replica) snapshot() error {
	_, err := r.exporter.Write(r.mirror.Scene(), r.cfg.Export.GLTFPath, r.cfg.Export.Binary)
	return err
}
