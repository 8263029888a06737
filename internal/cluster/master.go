// Package cluster drives the master side of a synchronized cluster: one
// process, commit and broadcast per frame.
package cluster

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/hsync/internal/network"
	"github.com/Faultbox/hsync/internal/replication"
	"github.com/Faultbox/hsync/internal/syncer"
)

// Broadcaster delivers committed frames. *network.Hub implements it.
type Broadcaster interface {
	Broadcast(ctx context.Context, frame []byte) (int, error)
	TakeResync() bool
}

var _ Broadcaster = (*network.Hub)(nil)

// FrameReport summarizes one frame.
type FrameReport struct {
	syncer.ProcessReport
	Seq   uint32
	Full  bool
	Bytes int
	Acked int
}

// Master owns the per-frame loop of the master process.
type Master struct {
	sync    *syncer.Context
	out     Broadcaster
	commits *replication.Master
	log     *zap.Logger
}

// NewMaster creates a master loop. out may be nil to run without replicas.
func NewMaster(sc *syncer.Context, out Broadcaster, log *zap.Logger) *Master {
	if log == nil {
		log = zap.NewNop()
	}
	return &Master{
		sync:    sc,
		out:     out,
		commits: replication.NewMaster(log),
		log:     log,
	}
}

// Frame processes every cooked asset, commits the frame and waits until
// every replica acknowledged it.
func (m *Master) Frame(ctx context.Context) (FrameReport, error) {
	var r FrameReport
	if m.out != nil && m.out.TakeResync() {
		m.commits.RequestFull()
	}

	pr, err := m.sync.Process()
	r.ProcessReport = pr
	if err != nil {
		return r, fmt.Errorf("processing: %w", err)
	}
	if pr.Err != nil {
		m.log.Warn("parts aborted this frame", zap.Int("failed", pr.Failed), zap.Error(pr.Err))
	}

	frame := m.commits.Commit(m.sync.Scene(), m.sync.TakeReleased(), m.sync.Materials)
	hdr, err := replication.ParseHeader(frame)
	if err != nil {
		return r, err
	}
	r.Seq, r.Full, r.Bytes = hdr.Seq, hdr.Full(), len(frame)

	if m.out != nil {
		r.Acked, err = m.out.Broadcast(ctx, frame)
		if err != nil {
			return r, err
		}
	}
	return r, nil
}

// Run runs a frame every interval until ctx is done. A path received on
// reloads reloads that asset library before the next frame.
func (m *Master) Run(ctx context.Context, interval time.Duration, reloads <-chan string) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case path := <-reloads:
			if err := m.sync.Reload(ctx, path); err != nil {
				// The previous instances keep running.
				m.log.Error("library reload failed", zap.String("path", path), zap.Error(err))
			}
		case <-ticker.C:
			r, err := m.Frame(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if r.Assets > 0 || r.Full {
				m.log.Info("frame committed", zap.Uint32("seq", r.Seq), zap.Bool("full", r.Full),
					zap.Int("bytes", r.Bytes), zap.Int("parts", r.Parts), zap.Int("acked", r.Acked))
			}
		}
	}
}
