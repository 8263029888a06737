// Package main is the cluster master: it owns the engine session, cooks the
// configured assets and streams their mirror to every replica.
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
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/hsync/internal/cluster"
	"github.com/Faultbox/hsync/internal/config"
	"github.com/Faultbox/hsync/internal/export"
	"github.com/Faultbox/hsync/internal/logger"
	"github.com/Faultbox/hsync/internal/material"
	"github.com/Faultbox/hsync/internal/materialize"
	"github.com/Faultbox/hsync/internal/network"
	"github.com/Faultbox/hsync/internal/syncer"
	"github.com/Faultbox/hsync/internal/watch"
	"github.com/Faultbox/hsync/pkg/hapi/memory"
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

	logger.Info("=== hsync master ===")
	logger.Sugar.Debugf("Config: %+v", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatal("master stopped", zap.Error(err))
	}
	logger.Info("master closed normally")
}

func syncOptions(cfg *config.Config) (syncer.Options, error) {
	winding, err := materialize.ParseWinding(cfg.Materializer.Winding)
	if err != nil {
		return syncer.Options{}, err
	}
	return syncer.Options{
		Materialize: materialize.Options{
			Winding:       winding,
			CurveSegments: cfg.Materializer.CurveSegments,
			PointClouds:   cfg.Materializer.PointClouds,
		},
		Textures:      cfg.Materializer.Materials,
		PollInterval:  cfg.Engine.PollInterval,
		ProgressEvery: cfg.Engine.ProgressEvery,
	}, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	opts, err := syncOptions(cfg)
	if err != nil {
		return err
	}
	engine := memory.New()
	engine.RegisterDemo()
	sc := syncer.New(engine, opts, logger.Named("syncer"))
	defer func() {
		if err := sc.Close(); err != nil {
			logger.Warn("closing session", zap.Error(err))
		}
	}()

	library := cfg.Engine.AssetLibrary
	if library != "" {
		if _, err := sc.LoadLibrary(library); err != nil {
			return err
		}
	}
	for _, name := range cfg.Engine.Assets {
		if _, err := sc.Instantiate(ctx, name); err != nil {
			return fmt.Errorf("instantiating %s: %w", name, err)
		}
	}

	hub, err := network.NewHub(network.HubConfig{
		Listen:           cfg.Cluster.Listen,
		HandshakeTimeout: cfg.Cluster.HandshakeTimeout,
		WriteTimeout:     cfg.Cluster.WriteTimeout,
		AckTimeout:       cfg.Cluster.AckTimeout,
	}, logger.Named("hub"))
	if err != nil {
		return err
	}

	var reloads <-chan string
	g, ctx := errgroup.WithContext(ctx)
	if cfg.Engine.Watch && library != "" {
		w, err := watch.New(library, 0, logger.Named("watch"))
		if err != nil {
			return err
		}
		defer w.Close()
		reloads = w.Changes()
		g.Go(func() error { return w.Run(ctx) })
	}

	g.Go(func() error { return hub.ListenAndServe(ctx) })
	g.Go(func() error {
		if n := cfg.Cluster.Replicas; n > 0 {
			logger.Info("waiting for replicas", zap.Int("replicas", n))
			if err := hub.WaitForReplicas(ctx, n); err != nil {
				return err
			}
		}
		m := cluster.NewMaster(sc, hub, logger.Named("master"))
		err := m.Run(ctx, cfg.Cluster.FrameInterval(), reloads)
		if err == nil {
			// Stops the listener when the loop ends on its own.
			err = context.Canceled
		}
		return err
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if path := cfg.Export.GLTFPath; path != "" {
		store := material.NewStore(logger.Named("export"))
		for _, m := range sc.Materials(true) {
			store.Apply(m)
		}
		if _, err := export.New(store, logger.Named("export")).Write(sc.Scene(), path, cfg.Export.Binary); err != nil {
			return err
		}
	}
	return nil
}
