package nodeclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	DefaultRequestTimeout    = 10 * time.Second
	DefaultReconnectBackoff  = 5 * time.Second
	DefaultOutboundQueueSize = 100

	// DefaultNonce is returned by GetNextNonce when the node can't provide one.
	DefaultNonce uint64 = 1

	methodSendRawTransaction = "send_raw_transaction"
	methodGetNextNonce       = "get_next_nonce"
)

var (
	// ErrNotConnected is returned when there is no live connection to the node, or writing to it failed.
	ErrNotConnected = errors.New("node connection not established")
	// ErrTimeout is returned when the node does not respond within the request timeout.
	ErrTimeout = errors.New("request timed out")
	// ErrConnectionLost is returned when the connection dropped before the node responded.
	ErrConnectionLost = errors.New("connection lost before receiving response")
	// ErrProtocol is returned when the node's response violates the JSON-RPC protocol.
	ErrProtocol = errors.New("protocol violation")
)

// Client is a JSON-RPC client for a Clutch node.
// It is safe for concurrent use.
type Client struct {
	url string

	log           *zap.SugaredLogger
	supervisorLog *zap.SugaredLogger
	demuxLog      *zap.SugaredLogger

	dial              Dialer
	clock             clock.Clock
	registerer        prometheus.Registerer
	metrics           *metrics
	requestTimeout    time.Duration
	reconnectBackoff  time.Duration
	outboundQueueSize int

	state   connState
	pending *pendingTable

	startOnce sync.Once
	closeOnce sync.Once
	cancel    func()
	wg        sync.WaitGroup
}

type Option func(c *Client)

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.log = l.Named("nodeclient").Sugar()
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.requestTimeout = d
	}
}

func WithReconnectBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.reconnectBackoff = d
	}
}

// WithClock sets the clock used for request timeouts and reconnect backoff.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		c.clock = clk
	}
}

func WithDialer(d Dialer) Option {
	return func(c *Client) {
		c.dial = d
	}
}

// WithRegisterer sets where the client's metrics are registered.
// By default they are registered with a private registry.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(c *Client) {
		c.registerer = r
	}
}

// WithOutboundQueueSize bounds the number of requests waiting to be written to the connection.
func WithOutboundQueueSize(n int) Option {
	return func(c *Client) {
		c.outboundQueueSize = n
	}
}

// New constructs a client for the node at url. Call Start to begin connecting.
func New(url string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, errors.New("node URL is required")
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	c := &Client{
		url:               url,
		log:               logger.Named("nodeclient").Sugar(),
		dial:              WebSocketDialer(nil),
		clock:             clock.New(),
		registerer:        prometheus.NewRegistry(),
		requestTimeout:    DefaultRequestTimeout,
		reconnectBackoff:  DefaultReconnectBackoff,
		outboundQueueSize: DefaultOutboundQueueSize,
		pending:           newPendingTable(),
	}
	for _, o := range opts {
		o(c)
	}
	c.supervisorLog = c.log.Named("supervisor")
	c.demuxLog = c.log.Named("demux")
	c.metrics = newMetrics(c.registerer)
	return c, nil
}

// Start starts the goroutine that connects to the node and keeps reconnecting until Close is called.
func (c *Client) Start() {
	c.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		c.wg.Add(1)
		go c.supervise(ctx)
	})
}

// Close disconnects from the node, abandons all pending calls, and stops reconnecting.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.startOnce.Do(func() {})
		if c.cancel != nil {
			c.cancel()
		}
		c.wg.Wait()
		c.pending.drain()
	})
	return nil
}

// Connected reports whether there is currently a live connection to the node.
func (c *Client) Connected() bool {
	return c.state.current() != nil
}

// Pending returns the number of calls awaiting a response.
func (c *Client) Pending() int {
	return c.pending.len()
}

// WaitConnected blocks until there is a live connection to the node or ctx is done.
func (c *Client) WaitConnected(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if c.Connected() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Call invokes method on the node and returns the raw JSON result.
//
// Errors can be distinguished with errors.Is against ErrNotConnected, ErrTimeout, ErrConnectionLost, and ErrProtocol.
// Errors reported by the node are returned as *RemoteError.
// The call never outlives the request timeout.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if method == "" {
		return nil, errors.New("method must not be empty")
	}
	// send_raw_transaction takes the raw transaction as a bare string rather than an object
	if method == methodSendRawTransaction {
		params = c.rawTransactionParam(params)
	}

	id := uuid.NewString()
	payload, err := encodeRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	slot, ok := c.pending.register(id)
	if !ok {
		c.metrics.calls.WithLabelValues(outcomeProtocolError).Inc()
		return nil, fmt.Errorf("%w: duplicate correlation ID %s", ErrProtocol, id)
	}
	c.metrics.pending.Inc()
	defer c.metrics.pending.Dec()

	// the deadline covers the send as well as the wait for a response
	timer := c.clock.Timer(c.requestTimeout)
	defer timer.Stop()

	c.log.Debugw("sending request to node", "ID", id, "Method", method, "Request", string(payload))
	if err := c.send(ctx, timer.C, payload); err != nil {
		removed := c.pending.remove(id)
		switch {
		case errors.Is(err, ErrTimeout) && removed:
			c.metrics.calls.WithLabelValues(outcomeTimeout).Inc()
			return nil, fmt.Errorf("%w after %s sending %q request", ErrTimeout, c.requestTimeout, method)
		case removed:
			c.metrics.calls.WithLabelValues(outcomeNotConnected).Inc()
			return nil, fmt.Errorf("sending %q request: %w", method, err)
		}
		// the response won the race with the deadline
		return c.handleOutcome(id, method, <-slot)
	}

	var o outcome
	select {
	case o = <-slot:
	case <-timer.C:
		if c.pending.remove(id) {
			c.metrics.calls.WithLabelValues(outcomeTimeout).Inc()
			return nil, fmt.Errorf("%w after %s: %s", ErrTimeout, c.requestTimeout, method)
		}
		// resolved concurrently, and the resolver always delivers after removing
		o = <-slot
	case <-ctx.Done():
		if c.pending.remove(id) {
			return nil, ctx.Err()
		}
		o = <-slot
	}
	return c.handleOutcome(id, method, o)
}

func (c *Client) handleOutcome(id, method string, o outcome) (json.RawMessage, error) {
	if o.err != nil {
		c.metrics.calls.WithLabelValues(outcomeProtocolError).Inc()
		return nil, o.err
	}
	if len(o.payload) == 0 {
		c.metrics.calls.WithLabelValues(outcomeConnectionLost).Inc()
		return nil, ErrConnectionLost
	}

	c.log.Debugw("received response from node", "ID", id, "Method", method, "Response", string(o.payload))
	resp, err := decodeResponse(o.payload)
	if err != nil {
		c.metrics.calls.WithLabelValues(outcomeProtocolError).Inc()
		return nil, fmt.Errorf("%w: decoding response: %v", ErrProtocol, err)
	}
	if resp.ID != id {
		c.metrics.calls.WithLabelValues(outcomeProtocolError).Inc()
		return nil, fmt.Errorf("%w: mismatched response ID %q, expected %q", ErrProtocol, resp.ID, id)
	}
	if resp.Error != nil {
		c.metrics.calls.WithLabelValues(outcomeRemoteError).Inc()
		return nil, resp.Error
	}
	if resp.Result == nil {
		c.metrics.calls.WithLabelValues(outcomeProtocolError).Inc()
		return nil, fmt.Errorf("%w: no result or error in response", ErrProtocol)
	}
	c.metrics.calls.WithLabelValues(outcomeOK).Inc()
	return resp.Result, nil
}

// rawTransactionParam returns the string content of params.
// Anything that isn't a string yields the empty string.
func (c *Client) rawTransactionParam(params any) string {
	if s, ok := params.(string); ok {
		return s
	}
	b, err := json.Marshal(params)
	if err == nil {
		if r := gjson.ParseBytes(b); r.Type == gjson.String {
			return r.Str
		}
	}
	c.log.Warnw("raw transaction params are not a string, sending empty transaction", "Params", string(b))
	return ""
}

// GetNextNonce asks the node for the next nonce of address.
//
// If the call fails or the result has no usable nonce, DefaultNonce is returned instead of an error.
// The returned value is a best-effort hint and is not authoritative: concurrent callers may get the same nonce.
func (c *Client) GetNextNonce(ctx context.Context, address string) uint64 {
	result, err := c.Call(ctx, methodGetNextNonce, map[string]string{"address": address})
	if err != nil {
		c.log.Warnw("failed to get nonce, using default", "Address", address, "Default", DefaultNonce, "Error", err)
		return DefaultNonce
	}
	nonce := gjson.GetBytes(result, "nonce")
	if nonce.Type != gjson.Number || nonce.Num < 0 || nonce.Num != math.Trunc(nonce.Num) {
		c.log.Warnw("failed to parse nonce from response, using default", "Address", address, "Default", DefaultNonce, "Result", string(result))
		return DefaultNonce
	}
	n := nonce.Uint()
	c.log.Debugw("retrieved nonce", "Address", address, "Nonce", n)
	return n
}
