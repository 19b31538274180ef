package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/room4-2/livevoice/audio"
	"github.com/room4-2/livevoice/messages"
)

const (
	writeTimeout  = 10 * time.Second
	sendQueueSize = 256
)

var errConnClosed = errors.New("connection closed")

type frame struct {
	messageType int
	data        []byte
}

// wsConn serializes writes to a websocket through a single write pump.
type wsConn struct {
	id        string
	conn      *websocket.Conn
	keepalive time.Duration
	send      chan frame
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
}

func newWSConn(id string, conn *websocket.Conn, keepalive time.Duration) *wsConn {
	return &wsConn{
		id:        id,
		conn:      conn,
		keepalive: keepalive,
		send:      make(chan frame, sendQueueSize),
		done:      make(chan struct{}),
	}
}

// queue adds a frame to the write queue without blocking. Frames are
// dropped when the queue is full or the connection is closed; full-queue
// drops are counted per connection.
func (c *wsConn) queue(messageType int, data []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- frame{messageType: messageType, data: data}:
		return nil
	default:
		n := c.dropped.Add(1)
		if n == 1 || n%100 == 0 {
			log.Printf("⚠️ [%s] Send queue full, dropped %d frames", c.id, n)
		}
		return fmt.Errorf("send queue full")
	}
}

func (c *wsConn) queueJSON(msg any) {
	data, err := messages.Encode(msg)
	if err != nil {
		log.Printf("⚠️ [%s] Failed to encode message: %v", c.id, err)
		return
	}
	if err := c.queue(websocket.TextMessage, data); err != nil && !errors.Is(err, errConnClosed) {
		log.Printf("⚠️ [%s] Dropping message: %v", c.id, err)
	}
}

// writePump handles all outgoing messages in a single goroutine
func (c *wsConn) writePump() {
	var ping <-chan time.Time
	if c.keepalive > 0 {
		ticker := time.NewTicker(c.keepalive)
		defer ticker.Stop()
		ping = ticker.C
	}

	defer func() {
		// Send close message before exiting
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = c.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.drain()
			return
		case f := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(f.messageType, f.data); err != nil {
				c.close()
				return
			}
		case <-ping:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// drain flushes frames queued before close.
func (c *wsConn) drain() {
	for {
		select {
		case f := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(f.messageType, f.data); err != nil {
				return
			}
		default:
			return
		}
	}
}

// watchReads extends the read deadline on every pong. Without keepalive
// there is no deadline.
func (c *wsConn) watchReads() {
	if c.keepalive <= 0 {
		return
	}
	wait := 2 * c.keepalive
	_ = c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})
}

// close stops the write pump, which closes the socket.
func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if n := c.dropped.Load(); n > 0 {
			log.Printf("📉 [%s] Closed after dropping %d frames", c.id, n)
		}
	})
}

// pushMicrophone hands a network-fed track to the session. permission is
// the outcome reported by the remote side.
type pushMicrophone struct {
	track      *audio.PushTrack
	permission string
}

func (m pushMicrophone) Open(_ context.Context, f audio.Format) (audio.Track, error) {
	switch m.permission {
	case "", messages.MicGranted:
	case messages.MicDenied:
		return nil, fmt.Errorf("client microphone: %w", audio.ErrPermissionDenied)
	default:
		return nil, fmt.Errorf("client microphone %q: %w", m.permission, audio.ErrDeviceUnavailable)
	}
	if f != audio.PCM16Mono16K {
		return nil, fmt.Errorf("client microphone cannot capture %s: %w", f, audio.ErrDeviceUnavailable)
	}
	return m.track, nil
}
