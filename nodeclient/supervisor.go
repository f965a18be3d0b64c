package nodeclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// epoch is the lifetime of a single established connection.
// Its context is cancelled as soon as the connection becomes unusable.
type epoch struct {
	conn     Conn
	outbound chan outboundFrame

	ctx    context.Context
	cancel func()

	failOnce sync.Once
	err      error
}

type outboundFrame struct {
	payload []byte
	result  chan error
}

func newEpoch(ctx context.Context, conn Conn, queueSize int) *epoch {
	ctx, cancel := context.WithCancel(ctx)
	return &epoch{
		conn:     conn,
		outbound: make(chan outboundFrame, queueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// fail marks the connection as unusable. Only the first cause is kept.
func (e *epoch) fail(err error) {
	e.failOnce.Do(func() {
		e.err = err
		e.cancel()
	})
}

// cause returns why the connection became unusable. It must only be called once e.ctx is done.
func (e *epoch) cause() error {
	e.fail(context.Canceled)
	return e.err
}

// connState is either disconnected (nil epoch) or connected to a live epoch.
// The supervisor is the only writer.
type connState struct {
	mut  sync.Mutex
	live *epoch
}

func (s *connState) current() *epoch {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.live
}

func (s *connState) set(e *epoch) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.live = e
}

// supervise keeps a connection to the node for as long as ctx is alive.
func (c *Client) supervise(ctx context.Context) {
	defer c.wg.Done()
	for {
		c.connect(ctx)
		if ctx.Err() != nil {
			return
		}
		c.supervisorLog.Infow("reconnecting to node after backoff", "URL", c.url, "Backoff", c.reconnectBackoff)
		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(c.reconnectBackoff):
		}
	}
}

// connect dials the node and services the connection until it is lost.
// When it returns, the client is disconnected and every pending call has been abandoned.
func (c *Client) connect(ctx context.Context) {
	conn, err := c.dial(ctx, c.url)
	if err != nil {
		c.supervisorLog.Errorw("failed to connect to node", "URL", c.url, "Error", err)
		c.metrics.reconnects.Inc()
		drained := c.pending.drain()
		if drained > 0 {
			c.supervisorLog.Warnw("abandoned pending calls", "Count", drained)
		}
		return
	}

	e := newEpoch(ctx, conn, c.outboundQueueSize)
	c.state.set(e)
	c.metrics.connected.Set(1)
	c.supervisorLog.Infow("connected to node", "URL", c.url)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.writeFrames(e)
	}()
	go func() {
		defer wg.Done()
		c.readFrames(e)
	}()

	<-e.ctx.Done()

	c.state.set(nil)
	c.metrics.connected.Set(0)
	if err := conn.Close(); err != nil {
		c.supervisorLog.Debugw("error closing node conn", "Error", err)
	}
	wg.Wait()

	drained := c.pending.drain()
	if ctx.Err() != nil {
		c.supervisorLog.Infow("disconnected from node", "URL", c.url, "Abandoned", drained)
		return
	}
	c.metrics.reconnects.Inc()
	c.supervisorLog.Errorw("connection to node lost", "URL", c.url, "Error", e.cause(), "Abandoned", drained)
}

// writeFrames writes queued requests to the connection in the order they were queued.
// A write failure takes the whole connection down.
func (c *Client) writeFrames(e *epoch) {
	for {
		select {
		case <-e.ctx.Done():
			return
		case f := <-e.outbound:
			if e.ctx.Err() != nil {
				f.result <- e.cause()
				return
			}
			err := e.conn.Write(e.ctx, f.payload)
			f.result <- err
			if err != nil {
				e.fail(fmt.Errorf("writing frame: %w", err))
				return
			}
		}
	}
}

// readFrames reads frames from the connection and dispatches each one to its pending call.
// A read failure or a close from the node takes the whole connection down.
func (c *Client) readFrames(e *epoch) {
	for {
		frame, err := e.conn.Read(e.ctx)
		if errors.Is(err, errNonTextFrame) {
			c.demuxLog.Debug("ignoring non-text frame")
			continue
		}
		if err != nil {
			e.fail(fmt.Errorf("reading frame: %w", err))
			return
		}
		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame []byte) {
	resp, err := decodeResponse(frame)
	if err != nil {
		id, ok := salvageID(frame)
		if ok && c.pending.resolve(id, outcome{err: fmt.Errorf("%w: malformed response: %v", ErrProtocol, err)}) {
			c.demuxLog.Warnw("failed pending call with malformed response", "ID", id, "Error", err)
			return
		}
		c.metrics.unmatchedFrames.Inc()
		c.demuxLog.Warnw("dropping malformed frame", "Frame", string(frame), "Error", err)
		return
	}
	if !c.pending.resolve(resp.ID, outcome{payload: frame}) {
		c.metrics.unmatchedFrames.Inc()
		c.demuxLog.Infow("received unexpected message", "ID", resp.ID, "Frame", string(frame))
	}
}

// send hands a serialized request to the live connection's writer and waits for it to be written.
// It fails immediately if there is no live connection, and with ErrTimeout if deadline fires first.
func (c *Client) send(ctx context.Context, deadline <-chan time.Time, payload []byte) error {
	e := c.state.current()
	if e == nil {
		return ErrNotConnected
	}

	f := outboundFrame{payload: payload, result: make(chan error, 1)}
	select {
	case e.outbound <- f:
	case <-e.ctx.Done():
		return fmt.Errorf("%w: %w", ErrNotConnected, e.cause())
	case <-deadline:
		return fmt.Errorf("%w: outbound queue full", ErrTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-f.result:
		if err != nil {
			return fmt.Errorf("%w: %w", ErrNotConnected, err)
		}
		return nil
	case <-e.ctx.Done():
		select {
		case err := <-f.result:
			if err == nil {
				return nil
			}
		default:
		}
		return fmt.Errorf("%w: %w", ErrNotConnected, e.cause())
	case <-deadline:
		return fmt.Errorf("%w: write did not complete", ErrTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
