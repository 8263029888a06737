// Package cook tracks asynchronous asset cooks as a state machine that the
// caller advances by polling.
package cook

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/hsync/internal/accessor"
	"github.com/Faultbox/hsync/pkg/hapi"
)

// State is the tracker's view of a cook.
type State int

const (
	Idle State = iota
	Cooking
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Cooking:
		return "cooking"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Failure is returned when a cook ends in an error state.
type Failure struct {
	Asset   hapi.AssetID
	State   hapi.State
	Message string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("cook of asset %d finished %s: %s", f.Asset, f.State, f.Message)
}

// Tracker follows one cook at a time.
type Tracker struct {
	session hapi.Session
	asset   hapi.AssetID
	state   State
	err     error
	polls   int
}

// NewTracker creates an idle tracker.
func NewTracker(session hapi.Session) *Tracker {
	return &Tracker{session: session}
}

// Start issues a cook of the asset.
func (t *Tracker) Start(asset hapi.AssetID) error {
	if err := t.session.CookAsset(asset); err != nil {
		return fmt.Errorf("cooking asset %d: %w", asset, &accessor.EngineCallFailure{
			Op:      "CookAsset",
			Code:    hapi.ResultOf(err),
			Message: t.session.StatusString(hapi.StatusCallResult, hapi.VerbosityErrors),
		})
	}
	t.Track(asset)
	return nil
}

// Track follows a cook that was started elsewhere, such as a cook on
// instantiation.
func (t *Tracker) Track(asset hapi.AssetID) {
	t.asset = asset
	t.state = Cooking
	t.err = nil
	t.polls = 0
}

// State returns the current state without polling.
func (t *Tracker) State() State { return t.state }

// Err returns the failure of a Failed cook.
func (t *Tracker) Err() error { return t.err }

// Polls returns how many polls the current cook took so far.
func (t *Tracker) Polls() int { return t.polls }

// TryAdvance polls the engine once. Any state above the highest ready
// state means the cook is still running; a ready state other than a clean
// ready ends in Failed with the cook status text.
func (t *Tracker) TryAdvance() State {
	if t.state != Cooking {
		return t.state
	}
	t.polls++

	s, err := t.session.Status(hapi.StatusCookState)
	if err != nil {
		t.state = Failed
		t.err = &Failure{
			Asset:   t.asset,
			State:   hapi.StateReadyWithFatalErrors,
			Message: t.session.StatusString(hapi.StatusCallResult, hapi.VerbosityErrors),
		}
		return t.state
	}

	switch {
	case s > hapi.StateMaxReady:
		return Cooking
	case s == hapi.StateReady:
		t.state = Ready
	default:
		t.state = Failed
		t.err = &Failure{
			Asset:   t.asset,
			State:   s,
			Message: t.session.StatusString(hapi.StatusCookResult, hapi.VerbosityErrors),
		}
	}
	return t.state
}

// Progress returns the engine's cook progress text.
func (t *Tracker) Progress() string {
	return t.session.StatusString(hapi.StatusCookState, hapi.VerbosityErrors)
}

// Wait advances the tracker every interval until the cook ends or ctx is
// done. Progress text is logged every progressEvery polls (0 disables it).
func Wait(ctx context.Context, t *Tracker, interval time.Duration, progressEvery int, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		switch t.TryAdvance() {
		case Ready:
			log.Debug("cook finished", zap.Int32("asset", int32(t.asset)), zap.Int("polls", t.polls))
			return nil
		case Failed:
			return t.err
		case Idle:
			return nil
		}
		if progressEvery > 0 && t.polls%progressEvery == 0 {
			log.Info("cooking", zap.Int32("asset", int32(t.asset)), zap.String("progress", t.Progress()))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
