package cook

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/hsync/internal/accessor"
	"github.com/Faultbox/hsync/pkg/hapi"
	"github.com/Faultbox/hsync/pkg/hapi/memory"
)

func instantiate(t *testing.T, e *memory.Engine) hapi.AssetID {
	t.Helper()
	e.RegisterDemo()
	id, err := e.InstantiateAsset(memory.DemoCubes, false)
	require.NoError(t, err)
	return id
}

func TestTryAdvance(t *testing.T) {
	e := memory.New(memory.WithCookPolls(2))
	id := instantiate(t, e)

	tr := NewTracker(e)
	assert.Equal(t, Idle, tr.TryAdvance())

	require.NoError(t, tr.Start(id))
	assert.Equal(t, Cooking, tr.TryAdvance())
	assert.Equal(t, Cooking, tr.TryAdvance())
	assert.Equal(t, Ready, tr.TryAdvance())
	assert.Equal(t, Ready, tr.TryAdvance(), "terminal states are sticky")
	assert.Equal(t, 3, tr.Polls())
	assert.NoError(t, tr.Err())
}

func TestTryAdvanceCookFailure(t *testing.T) {
	e := memory.New()
	id := instantiate(t, e)
	e.FailNextCook("node error")

	tr := NewTracker(e)
	require.NoError(t, tr.Start(id))
	require.Equal(t, Failed, tr.TryAdvance())

	var f *Failure
	require.True(t, errors.As(tr.Err(), &f))
	assert.Equal(t, hapi.StateReadyWithCookErrors, f.State)
	assert.Contains(t, f.Message, "node error")
}

func TestTryAdvanceStatusFailure(t *testing.T) {
	e := memory.New()
	id := instantiate(t, e)
	e.FailOn("Status", "engine gone", 1)

	tr := NewTracker(e)
	require.NoError(t, tr.Start(id))
	assert.Equal(t, Failed, tr.TryAdvance())
	assert.Contains(t, tr.Err().Error(), "engine gone")
}

func TestStartFailure(t *testing.T) {
	e := memory.New()
	id := instantiate(t, e)
	e.FailOn("CookAsset", "busy", 1)

	tr := NewTracker(e)
	err := tr.Start(id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "busy")
	assert.Equal(t, Idle, tr.State())

	var f *accessor.EngineCallFailure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, "CookAsset", f.Op)
	assert.Equal(t, hapi.ResultFailure, f.Code)
	assert.Equal(t, hapi.ResultFailure, hapi.ResultOf(err))
}

func TestWaitLogsProgress(t *testing.T) {
	e := memory.New(memory.WithCookPolls(4))
	id := instantiate(t, e)

	core, logs := observer.New(zap.InfoLevel)
	tr := NewTracker(e)
	require.NoError(t, tr.Start(id))
	require.NoError(t, Wait(context.Background(), tr, time.Millisecond, 2, zap.New(core)))

	assert.Equal(t, Ready, tr.State())
	assert.Equal(t, 2, logs.FilterMessage("cooking").Len())
}

func TestWaitHonoursCancellation(t *testing.T) {
	e := memory.New(memory.WithCookPolls(1 << 20))
	id := instantiate(t, e)

	tr := NewTracker(e)
	require.NoError(t, tr.Start(id))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := Wait(ctx, tr, time.Millisecond, 0, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Cooking, tr.State())
}
