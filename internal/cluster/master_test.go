package cluster

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/hsync/internal/material"
	"github.com/Faultbox/hsync/internal/mirror"
	"github.com/Faultbox/hsync/internal/network"
	"github.com/Faultbox/hsync/internal/replication"
	"github.com/Faultbox/hsync/internal/syncer"
	"github.com/Faultbox/hsync/pkg/hapi/memory"
)

type recorder struct {
	mu     sync.Mutex
	frames [][]byte
	resync bool
}

func (r *recorder) Broadcast(_ context.Context, frame []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
	return 1, nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func (r *recorder) TakeResync() bool {
	v := r.resync
	r.resync = false
	return v
}

func newSync(t *testing.T) *syncer.Context {
	t.Helper()
	e := memory.New()
	e.RegisterDemo()
	opts := syncer.DefaultOptions()
	opts.PollInterval = time.Millisecond
	c := syncer.New(e, opts, nil)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestFirstFrameIsFullThenDeltas(t *testing.T) {
	sc := newSync(t)
	_, err := sc.Instantiate(context.Background(), memory.DemoCubes)
	require.NoError(t, err)
	out := &recorder{}
	m := NewMaster(sc, out, nil)

	r, err := m.Frame(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Full)
	assert.Equal(t, uint32(1), r.Seq)
	assert.Equal(t, 3, r.Parts)
	assert.Equal(t, 1, r.Acked)

	r, err = m.Frame(context.Background())
	require.NoError(t, err)
	assert.False(t, r.Full)
	assert.Equal(t, replication.HeaderSize+1, r.Bytes, "nothing cooked, nothing sent")

	out.resync = true
	r, err = m.Frame(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Full)
	assert.Len(t, out.frames, 3)
}

func TestStandaloneMaster(t *testing.T) {
	sc := newSync(t)
	_, err := sc.Instantiate(context.Background(), memory.DemoHelix)
	require.NoError(t, err)

	r, err := NewMaster(sc, nil, nil).Frame(context.Background())
	require.NoError(t, err)
	assert.Zero(t, r.Acked)
	assert.Equal(t, 1, r.Assets)
}

func TestProcessFailureStopsTheFrame(t *testing.T) {
	e := memory.New()
	e.RegisterDemo()
	sc := syncer.New(e, syncer.DefaultOptions(), nil)
	defer sc.Close()
	_, err := sc.Instantiate(context.Background(), memory.DemoCubes)
	require.NoError(t, err)
	e.FailOn("ObjectInfos", "engine lost", 1)

	out := &recorder{}
	_, err = NewMaster(sc, out, nil).Frame(context.Background())
	assert.Error(t, err)
	assert.Empty(t, out.frames, "nothing is committed for a failed cycle")
}

// cluster connects one follower to a hub served over httptest.
func cluster(t *testing.T, ctx context.Context) (*network.Hub, *replication.Replica) {
	t.Helper()
	hub, err := network.NewHub(network.HubConfig{AckTimeout: 2 * time.Second}, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	c, err := network.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+network.Path, "wall", nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.NoError(t, hub.WaitForReplicas(ctx, 1))

	replica := replication.NewReplica(mirror.NewScene(), material.NewStore(nil), nil)
	go func() { _ = network.NewFollower(c, replica, nil).Run(ctx, nil) }()
	return hub, replica
}

func TestReplicaTracksMaster(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hub, replica := cluster(t, ctx)

	sc := newSync(t)
	_, err := sc.Instantiate(ctx, memory.DemoCubes)
	require.NoError(t, err)
	m := NewMaster(sc, hub, nil)

	// Broadcast returns after the ack, so the replica has applied the frame.
	r, err := m.Frame(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, r.Acked)
	g, ok := replica.Scene().Get(memory.DemoCubes)
	require.True(t, ok)
	require.Len(t, g.Objects, 3)
	assert.Equal(t, float32(5), g.Objects[2].Transform.Position.X)
	assert.Equal(t, 1, replica.Materials().Len())

	ok, err = sc.SetParmFloat(memory.DemoCubes, "spacing", 4)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = sc.Cook(ctx, memory.DemoCubes)
	require.NoError(t, err)
	require.True(t, ok)
	r, err = m.Frame(ctx)
	require.NoError(t, err)
	assert.False(t, r.Full)
	assert.Equal(t, float32(8), g.Objects[2].Transform.Position.X)

	ok, err = sc.Release(memory.DemoCubes)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = m.Frame(ctx)
	require.NoError(t, err)
	_, ok = replica.Scene().Get(memory.DemoCubes)
	assert.False(t, ok)
	assert.Zero(t, replica.Materials().Len())
}

func TestRunReloadsLibrary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib.yaml")
	write := func(count string) {
		data := "assets:\n  - name: lib::cubes\n    generator: cubes\n    parms:\n" +
			"      - {name: count, type: int, ints: [" + count + "]}\n"
		require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	}
	write("2")

	sc := newSync(t)
	_, err := sc.LoadLibrary(path)
	require.NoError(t, err)
	_, err = sc.Instantiate(context.Background(), "lib::cubes")
	require.NoError(t, err)

	out := &recorder{}
	m := NewMaster(sc, out, nil)
	ctx, cancel := context.WithCancel(context.Background())
	reloads := make(chan string)
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, 5*time.Millisecond, reloads) }()

	write("5")
	reloads <- path
	// Run is blocked on the send until it takes the path, so any frame
	// counted from here on was processed after the reload.
	n := out.count()
	require.Eventually(t, func() bool { return out.count() > n }, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	g, ok := sc.Scene().Get("lib::cubes")
	require.True(t, ok)
	assert.Len(t, g.Objects, 5)
}
