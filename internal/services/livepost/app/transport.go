package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/louisbranch/livepost/internal/platform/telemetry"
	"github.com/louisbranch/livepost/internal/platform/timeouts"
	"github.com/louisbranch/livepost/internal/services/livepost/wire"
	"golang.org/x/net/websocket"
)

const (
	maxPushFrameBytes  = 1 << 20
	pushOutboundBuffer = 256
)

// ConnState is the push connection lifecycle.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "disconnected"
}

// FrameHandler receives every decoded push envelope.
type FrameHandler interface {
	OnFrame(eventName string, payload []byte)
}

// FrameHandlerFunc adapts a function to FrameHandler.
type FrameHandlerFunc func(eventName string, payload []byte)

// OnFrame implements FrameHandler.
func (fn FrameHandlerFunc) OnFrame(eventName string, payload []byte) {
	fn(eventName, payload)
}

// TransportConfig configures the push connection.
type TransportConfig struct {
	URL              string
	Origin           string
	DialTimeout      time.Duration
	WriteTimeout     time.Duration
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	MaxFrameBytes    int
}

// Transport keeps one websocket to the push server open, reconnecting with
// exponential backoff. Outbound intents are sent in order while connected and
// dropped while disconnected; the registry's active set is replayed on every
// connect.
type Transport struct {
	config   TransportConfig
	handler  FrameHandler
	emitter  *telemetry.Emitter
	dial     func(ctx context.Context) (*websocket.Conn, error)
	outbound chan []byte
	state    atomic.Int32

	mu       sync.Mutex
	replay   func(atomically func()) []Intent
	watchers []func(ConnState)
}

// NewTransport builds a transport that hands inbound frames to handler.
func NewTransport(config TransportConfig, handler FrameHandler, emitter *telemetry.Emitter) (*Transport, error) {
	config.URL = strings.TrimSpace(config.URL)
	if config.URL == "" {
		return nil, errors.New("push url is required")
	}
	if handler == nil {
		return nil, errors.New("frame handler is required")
	}
	if config.Origin == "" {
		config.Origin = "http://localhost/"
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = timeouts.PushDial
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = timeouts.PushWrite
	}
	if config.ReconnectInitial <= 0 {
		config.ReconnectInitial = timeouts.PushReconnectInitial
	}
	if config.ReconnectMax <= 0 {
		config.ReconnectMax = timeouts.PushReconnectMax
	}
	if config.MaxFrameBytes <= 0 {
		config.MaxFrameBytes = maxPushFrameBytes
	}

	t := &Transport{
		config:   config,
		handler:  handler,
		emitter:  emitter,
		outbound: make(chan []byte, pushOutboundBuffer),
	}
	t.dial = t.dialPush
	return t, nil
}

// SetReplay installs the source of intents re-sent after each connect. replay
// must run atomically before taking its snapshot, with no intent sent while it
// runs; Registry.ActiveWith does this.
func (t *Transport) SetReplay(replay func(atomically func()) []Intent) {
	t.mu.Lock()
	t.replay = replay
	t.mu.Unlock()
}

// OnStateChange registers fn to observe connection state transitions.
func (t *Transport) OnStateChange(fn func(ConnState)) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	t.watchers = append(t.watchers, fn)
	t.mu.Unlock()
	fn(t.State())
}

// State returns the current connection state.
func (t *Transport) State() ConnState {
	return ConnState(t.state.Load())
}

// SendIntent queues an intent for the push server without blocking.
func (t *Transport) SendIntent(intent Intent) {
	frame := intentFrame(intent)
	if frame == nil {
		return
	}
	if t.State() != StateConnected {
		// Replayed from the registry on the next connect.
		return
	}
	select {
	case t.outbound <- frame:
	default:
		t.emitter.Emit(context.Background(), telemetry.Event{
			Name:       telemetry.EventIntentDropped,
			Severity:   telemetry.SeverityWarn,
			PostUUID:   intent.PostUUID,
			Attributes: map[string]string{"kind": intent.Kind.String(), "reason": "queue_full"},
		})
	}
}

func intentFrame(intent Intent) []byte {
	if !intent.Interest.PostUpdates || intent.PostUUID == "" {
		return nil
	}
	req := wire.SubscriptionRequest{PostUpdatesUUID: intent.PostUUID}
	switch intent.Kind {
	case IntentSubscribe:
		return wire.SubscribeFrame(req)
	case IntentUnsubscribe:
		return wire.UnsubscribeFrame(req)
	}
	return nil
}

// Run dials, serves and redials until ctx is canceled.
func (t *Transport) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	defer t.setState(StateDisconnected)

	for {
		t.setState(StateConnecting)
		conn, err := backoff.Retry(ctx, func() (*websocket.Conn, error) {
			return t.dial(ctx)
		},
			backoff.WithBackOff(t.newBackOff()),
			backoff.WithMaxElapsedTime(0),
			backoff.WithNotify(func(err error, next time.Duration) {
				log.Printf("push: dial %s failed, retrying in %s: %v", t.config.URL, next, err)
			}),
		)
		if ctx.Err() != nil {
			if conn != nil {
				_ = conn.Close()
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("dial push server: %w", err)
		}

		err = t.serve(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		t.emitter.Emit(ctx, telemetry.Event{
			Name:     telemetry.EventTransportDropped,
			Severity: telemetry.SeverityWarn,
			Err:      err,
		})
	}
}

func (t *Transport) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.config.ReconnectInitial
	b.MaxInterval = t.config.ReconnectMax
	return b
}

func (t *Transport) dialPush(ctx context.Context) (*websocket.Conn, error) {
	cfg, err := websocket.NewConfig(t.config.URL, t.config.Origin)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	dialCtx, cancel := context.WithTimeout(ctx, t.config.DialTimeout)
	defer cancel()
	return cfg.DialContext(dialCtx)
}

// serve owns conn until it fails or ctx ends.
func (t *Transport) serve(ctx context.Context, conn *websocket.Conn) error {
	conn.MaxPayloadBytes = t.config.MaxFrameBytes
	connCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-connCtx.Done()
		_ = conn.Close()
	}()

	replayed := t.connect()
	t.notify(StateConnected)
	defer t.setState(StateConnecting)
	t.emitter.Emit(ctx, telemetry.Event{
		Name:       telemetry.EventTransportConnected,
		Attributes: map[string]string{"url": t.config.URL},
	})

	for _, intent := range replayed {
		if frame := intentFrame(intent); frame != nil {
			if err := t.write(conn, frame); err != nil {
				return fmt.Errorf("replay subscriptions: %w", err)
			}
		}
	}

	writeErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		for {
			select {
			case <-connCtx.Done():
				return
			case frame := <-t.outbound:
				if err := t.write(conn, frame); err != nil {
					writeErr <- err
					return
				}
			}
		}
	}()

	readErr := t.readLoop(conn)
	cancel()
	select {
	case err := <-writeErr:
		return fmt.Errorf("write push frame: %w", err)
	default:
	}
	return readErr
}

func (t *Transport) readLoop(conn *websocket.Conn) error {
	for {
		var data []byte
		if err := websocket.Message.Receive(conn, &data); err != nil {
			return fmt.Errorf("read push frame: %w", err)
		}
		name, payload, err := wire.DecodeEnvelope(data)
		if err != nil {
			t.emitter.Emit(context.Background(), telemetry.Event{
				Name:       telemetry.EventFrameDecodeFailed,
				Severity:   telemetry.SeverityWarn,
				Attributes: map[string]string{"stage": "envelope"},
				Err:        err,
			})
			continue
		}
		t.handler.OnFrame(name, payload)
	}
}

func (t *Transport) write(conn *websocket.Conn, frame []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
	return websocket.Message.Send(conn, frame)
}

// drainOutbound discards intents left from a previous connection.
func (t *Transport) drainOutbound() {
	for {
		select {
		case <-t.outbound:
		default:
			return
		}
	}
}

// connect drops intents left from the previous connection and marks the
// transport connected. Both happen inside the replay snapshot, so every intent
// is either queued after it or covered by it, never both.
func (t *Transport) connect() []Intent {
	t.mu.Lock()
	replay := t.replay
	t.mu.Unlock()

	mark := func() {
		t.drainOutbound()
		t.state.Store(int32(StateConnected))
	}
	if replay == nil {
		mark()
		return nil
	}
	return replay(mark)
}

func (t *Transport) setState(next ConnState) {
	if ConnState(t.state.Swap(int32(next))) == next {
		return
	}
	t.notify(next)
}

func (t *Transport) notify(next ConnState) {
	t.mu.Lock()
	watchers := append([]func(ConnState){}, t.watchers...)
	t.mu.Unlock()
	for _, fn := range watchers {
		fn(next)
	}
}
