package network

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Faultbox/hsync/internal/network/packets"
	"github.com/Faultbox/hsync/internal/replication"
)

// ErrRefused is returned by Dial when the hub turns the replica away.
var ErrRefused = errors.New("network: refused by hub")

// ErrClosed is returned by Next once the connection is gone.
var ErrClosed = errors.New("network: connection closed")

// Client is the replica side of the cluster channel.
type Client struct {
	conn *websocket.Conn
	id   uint32
	log  *zap.Logger

	wmu    sync.Mutex
	frames chan []byte
	done   chan struct{}
	err    error
	once   sync.Once
}

// Dial connects to the hub at url and completes the handshake.
func Dial(ctx context.Context, url, name string, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}
	hello := packets.NewHello(replication.Version, name).Encode()
	if err := conn.WriteMessage(websocket.BinaryMessage, hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending hello: %w", err)
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading welcome: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Time{})

	id, err := packets.ID(msg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	switch id {
	case packets.MR_WELCOME:
		var w packets.Welcome
		if err := w.Decode(msg); err != nil {
			conn.Close()
			return nil, err
		}
		c := &Client{
			conn:   conn,
			id:     w.ReplicaID,
			log:    log.With(zap.Uint32("replica", w.ReplicaID)),
			frames: make(chan []byte, 8),
			done:   make(chan struct{}),
		}
		go c.readLoop()
		c.log.Info("joined cluster", zap.String("hub", url))
		return c, nil
	case packets.MR_REFUSE:
		var r packets.Refuse
		_ = r.Decode(msg)
		conn.Close()
		return nil, fmt.Errorf("%w: reason %d", ErrRefused, r.Reason)
	default:
		conn.Close()
		return nil, fmt.Errorf("unexpected handshake packet 0x%04X", id)
	}
}

// ID returns the replica id assigned by the hub.
func (c *Client) ID() uint32 { return c.id }

func (c *Client) readLoop() {
	defer close(c.frames)
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		if !bytes.HasPrefix(msg, []byte(replication.Magic)) {
			id, _ := packets.ID(msg)
			c.log.Warn("unexpected packet", zap.Uint16("id", id))
			continue
		}
		select {
		case c.frames <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) fail(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
		c.conn.Close()
	})
}

// Frames delivers incoming frames. It is closed when the connection drops.
func (c *Client) Frames() <-chan []byte { return c.frames }

// Next returns the next frame from the hub.
func (c *Client) Next(ctx context.Context) ([]byte, error) {
	select {
	case f, ok := <-c.frames:
		if !ok {
			return nil, fmt.Errorf("%w: %v", ErrClosed, c.err)
		}
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) send(b []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, b)
}

// Ack tells the hub that frame seq was handled.
func (c *Client) Ack(seq uint32) error {
	return c.send((&packets.Ack{Seq: seq}).Encode())
}

// RequestResync asks the hub for a full frame.
func (c *Client) RequestResync(last uint32) error {
	return c.send((&packets.Resync{LastSeq: last}).Encode())
}

// Close closes the connection.
func (c *Client) Close() error {
	c.wmu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.wmu.Unlock()
	c.fail(ErrClosed)
	return nil
}
