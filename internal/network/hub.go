// Package network carries replication frames between the master and its
// replicas over websockets.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/hsync/internal/network/packets"
	"github.com/Faultbox/hsync/internal/replication"
)

// Path is the websocket endpoint served by the hub.
const Path = "/cluster"

// HubConfig configures a Hub.
type HubConfig struct {
	Listen           string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// AckTimeout bounds how long a broadcast waits for one replica.
	AckTimeout time.Duration
}

func (c *HubConfig) defaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = 10 * time.Second
	}
}

type peer struct {
	id     uint32
	name   string
	conn   *websocket.Conn
	wmu    sync.Mutex
	acks   chan uint32
	closed chan struct{}
	once   sync.Once
}

func (p *peer) write(data []byte, timeout time.Duration) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return p.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (p *peer) close() {
	p.once.Do(func() {
		close(p.closed)
		p.conn.Close()
	})
}

// Hub is the master side of the cluster channel.
type Hub struct {
	cfg        HubConfig
	log        *zap.Logger
	upgrader   websocket.Upgrader
	constraint *semver.Constraints

	mu      sync.Mutex
	peers   map[uint32]*peer
	nextID  uint32
	changed chan struct{}

	resync atomic.Bool
}

// NewHub creates a hub. It does not listen until ListenAndServe.
func NewHub(cfg HubConfig, log *zap.Logger) (*Hub, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cfg.defaults()
	c, err := semver.NewConstraint(fmt.Sprintf("^%d.0", replication.ProtocolMajor))
	if err != nil {
		return nil, fmt.Errorf("protocol constraint: %w", err)
	}
	return &Hub{
		cfg:        cfg,
		log:        log,
		upgrader:   websocket.Upgrader{HandshakeTimeout: cfg.HandshakeTimeout},
		constraint: c,
		peers:      make(map[uint32]*peer),
		changed:    make(chan struct{}),
	}, nil
}

// Handler returns the HTTP handler serving Path.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, h.serve)
	return mux
}

// ListenAndServe serves the hub until ctx is done.
func (h *Hub) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", h.cfg.Listen, err)
	}
	return h.Serve(ctx, ln)
}

// Serve serves the hub on ln until ctx is done.
func (h *Hub) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: h.Handler(), ReadHeaderTimeout: h.cfg.HandshakeTimeout}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.cfg.WriteTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		h.Close()
	}()
	h.log.Info("cluster hub listening", zap.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (h *Hub) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	p, err := h.handshake(conn)
	if err != nil {
		h.log.Warn("replica refused", zap.String("remote", r.RemoteAddr), zap.Error(err))
		conn.Close()
		return
	}
	h.add(p)
	defer h.remove(p)
	h.readLoop(p)
}

func (h *Hub) handshake(conn *websocket.Conn) (*peer, error) {
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.HandshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("reading hello: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	refuse := func(reason uint8, err error) (*peer, error) {
		_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
		_ = conn.WriteMessage(websocket.BinaryMessage, (&packets.Refuse{Reason: reason}).Encode())
		return nil, err
	}

	var hello packets.Hello
	if err := hello.Decode(msg); err != nil {
		return refuse(packets.RefuseBadHello, err)
	}
	v, err := semver.NewVersion(hello.VersionString())
	if err != nil {
		return refuse(packets.RefuseVersion, fmt.Errorf("replica version %q: %w", hello.VersionString(), err))
	}
	if !h.constraint.Check(v) {
		return refuse(packets.RefuseVersion, fmt.Errorf("replica speaks %s, hub speaks %s", v, replication.Version))
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.mu.Unlock()

	p := &peer{
		id:     id,
		name:   hello.NameString(),
		conn:   conn,
		acks:   make(chan uint32, 16),
		closed: make(chan struct{}),
	}
	if err := p.write((&packets.Welcome{ReplicaID: id}).Encode(), h.cfg.WriteTimeout); err != nil {
		return nil, fmt.Errorf("sending welcome: %w", err)
	}
	return p, nil
}

func (h *Hub) readLoop(p *peer) {
	log := h.log.With(zap.Uint32("replica", p.id), zap.String("name", p.name))
	for {
		_, msg, err := p.conn.ReadMessage()
		if err != nil {
			select {
			case <-p.closed:
			default:
				log.Info("replica disconnected", zap.Error(err))
			}
			return
		}
		id, err := packets.ID(msg)
		if err != nil {
			log.Warn("bad packet", zap.Error(err))
			continue
		}
		switch id {
		case packets.RM_ACK:
			var a packets.Ack
			if err := a.Decode(msg); err != nil {
				log.Warn("bad ack", zap.Error(err))
				continue
			}
			select {
			case p.acks <- a.Seq:
			case <-p.closed:
				return
			}
		case packets.RM_RESYNC:
			var r packets.Resync
			if err := r.Decode(msg); err != nil {
				log.Warn("bad resync", zap.Error(err))
				continue
			}
			log.Info("replica requested a full frame", zap.Uint32("last_seq", r.LastSeq))
			h.resync.Store(true)
		default:
			log.Warn("unexpected packet", zap.Uint16("id", id))
		}
	}
}

func (h *Hub) add(p *peer) {
	h.mu.Lock()
	h.peers[p.id] = p
	h.notifyLocked()
	n := len(h.peers)
	h.mu.Unlock()
	// A joining replica has no state; the next frame must carry everything.
	h.resync.Store(true)
	h.log.Info("replica joined", zap.Uint32("replica", p.id), zap.String("name", p.name), zap.Int("replicas", n))
}

func (h *Hub) remove(p *peer) {
	p.close()
	h.mu.Lock()
	if _, ok := h.peers[p.id]; ok {
		delete(h.peers, p.id)
		h.notifyLocked()
	}
	h.mu.Unlock()
}

func (h *Hub) notifyLocked() {
	close(h.changed)
	h.changed = make(chan struct{})
}

// Replicas returns the number of connected replicas.
func (h *Hub) Replicas() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// WaitForReplicas blocks until at least n replicas are connected.
func (h *Hub) WaitForReplicas(ctx context.Context, n int) error {
	for {
		h.mu.Lock()
		have, changed := len(h.peers), h.changed
		h.mu.Unlock()
		if have >= n {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %d replicas, have %d: %w", n, have, ctx.Err())
		case <-changed:
		}
	}
}

// TakeResync reports whether a full frame was requested since the last
// call, and clears the request.
func (h *Hub) TakeResync() bool {
	return h.resync.Swap(false)
}

// Broadcast sends frame to every connected replica and waits until each
// acknowledged it. Replicas that fail to write or ack in time are dropped.
// It returns the number of replicas that acknowledged.
func (h *Hub) Broadcast(ctx context.Context, frame []byte) (int, error) {
	hdr, err := replication.ParseHeader(frame)
	if err != nil {
		return 0, fmt.Errorf("refusing to broadcast: %w", err)
	}

	h.mu.Lock()
	peers := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()

	var acked atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range peers {
		g.Go(func() error {
			err := h.deliver(gctx, p, frame, hdr.Seq)
			switch {
			case err == nil:
				acked.Add(1)
				return nil
			case ctx.Err() != nil:
				return ctx.Err()
			default:
				h.log.Warn("dropping replica", zap.Uint32("replica", p.id), zap.String("name", p.name),
					zap.Uint32("seq", hdr.Seq), zap.Error(err))
				h.remove(p)
				return nil
			}
		})
	}
	err = g.Wait()
	return int(acked.Load()), err
}

func (h *Hub) deliver(ctx context.Context, p *peer, frame []byte, seq uint32) error {
	if err := p.write(frame, h.cfg.WriteTimeout); err != nil {
		return fmt.Errorf("sending frame: %w", err)
	}
	timer := time.NewTimer(h.cfg.AckTimeout)
	defer timer.Stop()
	for {
		select {
		case got := <-p.acks:
			if got == seq {
				return nil
			}
			// Acks of earlier frames arrive late after a timeout; skip them.
		case <-p.closed:
			return errors.New("connection closed")
		case <-timer.C:
			return fmt.Errorf("no ack for frame %d within %s", seq, h.cfg.AckTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close disconnects every replica.
func (h *Hub) Close() {
	h.mu.Lock()
	peers := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()
	for _, p := range peers {
		h.remove(p)
	}
}
