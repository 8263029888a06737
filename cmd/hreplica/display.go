package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/hsync/internal/gpu"
	"github.com/Faultbox/hsync/internal/logger"
	"github.com/Faultbox/hsync/internal/mirror"
	"github.com/Faultbox/hsync/internal/network"
	"github.com/Faultbox/hsync/internal/window"
	hmath "github.com/Faultbox/hsync/pkg/math"
)

// windowed applies frames and draws on the main thread, which owns the GL
// context.
func (r *replica) windowed(ctx context.Context) error {
	win, err := window.New(window.Config{
		Title:      fmt.Sprintf("hsync replica %s (%d)", r.cfg.Cluster.Name, r.client.ID()),
		Width:      r.cfg.Display.Width,
		Height:     r.cfg.Display.Height,
		Fullscreen: r.cfg.Display.Fullscreen,
		VSync:      r.cfg.Display.VSync,
	}, logger.Named("window"))
	if err != nil {
		return err
	}
	defer win.Close()

	rend, err := gpu.New(logger.Named("gpu"))
	if err != nil {
		return err
	}
	defer rend.Close()

	cam := gpu.NewCamera()
	framed := false
	scene := r.mirror.Scene()
	log := logger.Named("replica")

	for ctx.Err() == nil {
		in := win.Poll()
		if in.Quit {
			return nil
		}
		if err := r.drain(log); err != nil {
			return err
		}

		if b := bounds(scene); !b.Empty() && (!framed || in.Reframe) {
			cam.Frame(b)
			framed = true
		}
		cam.Drag(in.DragX, in.DragY)
		if in.Wheel != 0 {
			cam.Zoom(in.Wheel)
		}
		if in.Snapshot && r.cfg.Export.GLTFPath != "" {
			if err := r.snapshot(); err != nil {
				log.Error("snapshot failed", zap.Error(err))
			}
		}

		rend.Sync(scene, r.store)
		w, h := win.DrawableSize()
		rend.Draw(scene, r.store, cam, w, h)
		win.SwapBuffers()
	}
	return nil
}

// drain applies every frame that arrived since the last draw.
func (r *replica) drain(log *zap.Logger) error {
	for {
		select {
		case frame, ok := <-r.client.Frames():
			if !ok {
				return network.ErrClosed
			}
			res, changed, err := r.follower.Apply(frame)
			if err != nil {
				return err
			}
			if changed {
				log.Debug("frame applied", zap.Uint32("seq", res.Seq), zap.Int("published", res.Published))
			}
		default:
			return nil
		}
	}
}

func bounds(scene *mirror.Scene) hmath.Bounds {
	var b hmath.Bounds
	scene.Each(func(g *mirror.Geometry) {
		if gb := g.Bounds(); !gb.Empty() {
			b.Extend(gb.Min)
			b.Extend(gb.Max)
		}
	})
	return b
}
