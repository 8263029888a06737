package network

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Faultbox/hsync/internal/replication"
)

// Follower applies the frames of one client to a replica.
// Every frame is acknowledged, including skipped ones, so the hub never
// stalls on this replica. When the replica loses sync a full frame is
// requested once per loss.
type Follower struct {
	c         *Client
	r         *replication.Replica
	log       *zap.Logger
	requested bool
}

// NewFollower creates a follower.
func NewFollower(c *Client, r *replication.Replica, log *zap.Logger) *Follower {
	if log == nil {
		log = zap.NewNop()
	}
	return &Follower{c: c, r: r, log: log}
}

// Apply updates the replica with one frame. changed reports whether the
// mirror changed. The error is a transport error; frame errors are
// handled here.
func (f *Follower) Apply(frame []byte) (res replication.Result, changed bool, err error) {
	res, uerr := f.r.Update(frame)
	if uerr == nil {
		f.requested = false
		changed = res.Published > 0 || len(res.Released) > 0
	}
	if err := f.c.Ack(res.Seq); err != nil {
		return res, changed, err
	}
	if f.r.NeedsFull() && !f.requested {
		f.log.Info("requesting a full frame", zap.Uint32("last_seq", f.r.LastSeq()))
		if err := f.c.RequestResync(f.r.LastSeq()); err != nil {
			return res, changed, err
		}
		f.requested = true
	}
	return res, changed, nil
}

// Run applies frames until ctx is done or the connection drops. applied is
// called after every frame that changed the mirror; it may be nil.
func (f *Follower) Run(ctx context.Context, applied func(replication.Result)) error {
	for {
		frame, err := f.c.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		res, changed, err := f.Apply(frame)
		if err != nil {
			return err
		}
		if changed && applied != nil {
			applied(res)
		}
	}
}
