// Package syncer owns the synchronization context of the master: the
// engine session, the accessor cache, the per-asset material tables and the
// authoritative scene mirror.
package syncer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/hsync/internal/accessor"
	"github.com/Faultbox/hsync/internal/cook"
	"github.com/Faultbox/hsync/internal/material"
	"github.com/Faultbox/hsync/internal/materialize"
	"github.com/Faultbox/hsync/internal/mirror"
	"github.com/Faultbox/hsync/pkg/hapi"
)

// Options configure a Context.
type Options struct {
	Materialize materialize.Options
	// Textures renders material textures and ships them to replicas.
	Textures bool
	// PollInterval is the delay between cook-state polls.
	PollInterval time.Duration
	// ProgressEvery logs cook progress every n polls; 0 disables it.
	ProgressEvery int
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		Materialize:   materialize.DefaultOptions(),
		Textures:      true,
		PollInterval:  10 * time.Millisecond,
		ProgressEvery: 50,
	}
}

type syncedAsset struct {
	name      string
	handle    accessor.Asset
	materials *material.Table
	// pending is set by a completed cook and cleared by Process.
	pending bool
}

// Context is the synchronization context. It is not safe for concurrent
// use; the master's control loop owns it.
type Context struct {
	session hapi.Session
	acc     *accessor.Accessor
	mat     *materialize.Materializer
	tracker *cook.Tracker
	scene   *mirror.Scene
	opts    Options
	log     *zap.Logger

	assets   map[string]*syncedAsset
	order    []string
	released []string
}

// New creates a context over an open session.
func New(session hapi.Session, opts Options, log *zap.Logger) *Context {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions().PollInterval
	}
	acc := accessor.New(session, log.Named("accessor"))
	return &Context{
		session: session,
		acc:     acc,
		mat:     materialize.New(acc, opts.Materialize, log.Named("materialize")),
		tracker: cook.NewTracker(session),
		scene:   mirror.NewScene(),
		opts:    opts,
		log:     log,
		assets:  make(map[string]*syncedAsset),
	}
}

// Scene returns the authoritative mirror.
func (c *Context) Scene() *mirror.Scene { return c.scene }

// Accessor returns the accessor used for every engine read.
func (c *Context) Accessor() *accessor.Accessor { return c.acc }

// Assets returns the names of the instantiated assets in instantiation order.
func (c *Context) Assets() []string {
	return append([]string(nil), c.order...)
}

// AssetID returns the engine id of a named asset. A miss logs a warning.
func (c *Context) AssetID(name string) (hapi.AssetID, bool) {
	a, ok := c.lookup(name)
	if !ok {
		return -1, false
	}
	return a.handle.ID, true
}

func (c *Context) lookup(name string) (*syncedAsset, bool) {
	a, ok := c.assets[name]
	if !ok {
		c.log.Warn("no such asset", zap.String("asset", name))
	}
	return a, ok
}

// LoadLibrary loads an asset library and returns the asset names it defines.
func (c *Context) LoadLibrary(path string) ([]string, error) {
	lib, err := c.session.LoadAssetLibrary(path)
	if err != nil {
		return nil, c.acc.Check("LoadAssetLibrary", err)
	}
	names, err := c.session.AvailableAssets(lib)
	if err != nil {
		return nil, c.acc.Check("AvailableAssets", err)
	}
	c.log.Info("asset library loaded", zap.String("path", path), zap.Strings("assets", names))
	return names, nil
}

// Instantiate creates the named asset, waits for its first cook and adds it
// to the context. A failed cook destroys the asset again.
func (c *Context) Instantiate(ctx context.Context, name string) (hapi.AssetID, error) {
	if _, ok := c.assets[name]; ok {
		return -1, fmt.Errorf("asset %s is already instantiated", name)
	}
	id, err := c.create(ctx, name)
	if err != nil {
		return -1, err
	}
	c.assets[name] = &syncedAsset{
		name:      name,
		handle:    accessor.Asset{ID: id},
		materials: c.newTable(name),
		pending:   true,
	}
	c.order = append(c.order, name)
	c.scene.Ensure(name)
	c.log.Info("asset instantiated", zap.String("asset", name), zap.Int32("id", int32(id)))
	return id, nil
}

func (c *Context) create(ctx context.Context, name string) (hapi.AssetID, error) {
	id, err := c.session.InstantiateAsset(name, true)
	if err != nil {
		return -1, c.acc.Check("InstantiateAsset", err)
	}
	c.tracker.Track(id)
	if err := c.wait(ctx); err != nil {
		_ = c.session.DestroyAsset(id)
		c.acc.Forget(id)
		return -1, err
	}
	c.acc.Forget(id)
	return id, nil
}

func (c *Context) newTable(name string) *material.Table {
	return material.NewTable(name, c.acc, c.opts.Textures, c.log.Named("material"))
}

func (c *Context) wait(ctx context.Context) error {
	return cook.Wait(ctx, c.tracker, c.opts.PollInterval, c.opts.ProgressEvery, c.log)
}

// Cook recomputes the named asset and waits for the result. A miss logs a
// warning and returns false.
func (c *Context) Cook(ctx context.Context, name string) (bool, error) {
	a, ok := c.lookup(name)
	if !ok {
		return false, nil
	}
	start := time.Now()
	if err := c.tracker.Start(a.handle.ID); err != nil {
		return true, err
	}
	err := c.wait(ctx)
	c.acc.Forget(a.handle.ID)
	if err != nil {
		return true, err
	}
	a.pending = true
	c.log.Info("asset cooked", zap.String("asset", name),
		zap.Int("polls", c.tracker.Polls()), zap.Duration("took", time.Since(start)))
	return true, nil
}

// Release destroys the named asset and drops its mirror. The name is
// reported by TakeReleased until the next frame is committed.
func (c *Context) Release(name string) (bool, error) {
	a, ok := c.lookup(name)
	if !ok {
		return false, nil
	}
	err := c.session.DestroyAsset(a.handle.ID)
	c.acc.Forget(a.handle.ID)
	delete(c.assets, name)
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.scene.Remove(name)
	c.released = append(c.released, name)
	c.log.Info("asset released", zap.String("asset", name))
	if err != nil {
		return true, c.acc.Check("DestroyAsset", err)
	}
	return true, nil
}

// TakeReleased returns and forgets the names released since the last call.
func (c *Context) TakeReleased() []string {
	r := c.released
	c.released = nil
	return r
}

// Reload loads the library at path again and re-creates every instantiated
// asset it defines. The mirrors are kept; the fresh first cook rewrites them.
// An asset whose new instance cannot be created keeps its previous one.
func (c *Context) Reload(ctx context.Context, path string) error {
	names, err := c.LoadLibrary(path)
	if err != nil {
		return err
	}
	var errs error
	for _, name := range names {
		a, ok := c.assets[name]
		if !ok {
			continue
		}
		id, err := c.create(ctx, name)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("re-instantiating %s: %w", name, err))
			c.log.Warn("reload failed, previous instance kept", zap.String("asset", name), zap.Error(err))
			continue
		}
		if err := c.session.DestroyAsset(a.handle.ID); err != nil {
			errs = multierr.Append(errs, c.acc.Check("DestroyAsset", err))
		}
		c.acc.Forget(a.handle.ID)
		a.handle = accessor.Asset{ID: id}
		a.materials = c.newTable(name)
		a.pending = true
		c.log.Info("asset reloaded", zap.String("asset", name), zap.Int32("id", int32(id)))
	}
	return errs
}

// Materials returns the materials to ship this frame: every known one when
// full is set, otherwise those re-read by the last Process.
func (c *Context) Materials(full bool) []*material.Material {
	var out []*material.Material
	for _, name := range c.order {
		t := c.assets[name].materials
		if full {
			out = append(out, t.All()...)
		} else {
			out = append(out, t.Changed()...)
		}
	}
	return out
}

// Close destroys every asset. The context must not be used afterwards.
func (c *Context) Close() error {
	var errs error
	for _, name := range c.order {
		if err := c.session.DestroyAsset(c.assets[name].handle.ID); err != nil {
			errs = multierr.Append(errs, c.acc.Check("DestroyAsset", err))
		}
	}
	c.assets = make(map[string]*syncedAsset)
	c.order = nil
	c.acc.Reset()
	return errs
}
