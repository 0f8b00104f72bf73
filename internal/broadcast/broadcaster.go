package broadcast

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lantsov/middleman/internal/adapter/metrics"
	"github.com/Lantsov/middleman/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	commandTimeout  = 5 * time.Second
	stopTimeout     = 10 * time.Second
	maxTickDuration = 100 * time.Millisecond
	cmdBufferSize   = 256
)

// Encoder produces the serialized snapshot sent on every tick.
type Encoder interface {
	Encode() ([]byte, error)
}

// broadcasterCmd is the command interface for the Broadcaster actor.
type broadcasterCmd interface{ isBroadcasterCmd() }

type baseBroadcasterCmd struct{}

func (baseBroadcasterCmd) isBroadcasterCmd() {}

type registerCmd struct {
	baseBroadcasterCmd
	id           string
	connection   *websocket.Conn
	errorChannel chan error
}

type unregisterCmd struct {
	baseBroadcasterCmd
	id string
}

type getClientCountCmd struct {
	baseBroadcasterCmd
	replyChannel chan int
}

type stopCmd struct {
	baseBroadcasterCmd
}

var errBroadcasterStopped = errors.New("broadcaster stopped")

// Broadcaster manages subscriber connections and pushes the encoded snapshot to all of them
// on a fixed tick.
type Broadcaster struct {
	cmdCh          chan broadcasterCmd
	clock          clockwork.Clock
	clients        map[string]*clientWriter
	snapshot       Encoder
	metrics        *metrics.BroadcastMetrics
	done           chan struct{}
	stopping       chan struct{}
	stopTimeout    time.Duration
	maxSubscribers int
	tickInterval   time.Duration
}

// NewBroadcaster creates a broadcaster and starts its actor goroutine.
// maxSubscribers <= 0 means no limit. m may be nil.
func NewBroadcaster(snapshot Encoder, clock clockwork.Clock, tickInterval time.Duration, maxSubscribers int, m *metrics.BroadcastMetrics) *Broadcaster {
	b := &Broadcaster{
		cmdCh:          make(chan broadcasterCmd, cmdBufferSize),
		clock:          clock,
		clients:        make(map[string]*clientWriter),
		snapshot:       snapshot,
		metrics:        m,
		done:           make(chan struct{}),
		stopping:       make(chan struct{}),
		stopTimeout:    stopTimeout,
		maxSubscribers: maxSubscribers,
		tickInterval:   tickInterval,
	}
	// Created before the actor starts so a fake clock sees the ticker immediately.
	ticker := clock.NewTicker(tickInterval)
	go b.run(ticker)
	return b
}

// Register adds a subscriber. The current snapshot is queued as its first frame so it does not
// wait a full tick for data. Returns domain.ErrSubscriberLimit when the limit is reached.
func (b *Broadcaster) Register(id string, conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	if !b.send(registerCmd{id: id, connection: conn, errorChannel: errCh}) {
		return errBroadcasterStopped
	}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-b.done:
		// Queued behind a stop that the actor already processed.
		return errBroadcasterStopped
	case <-timer.Chan():
		return fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes a subscriber. Unknown ids are ignored.
func (b *Broadcaster) Unregister(id string) {
	b.send(unregisterCmd{id: id})
}

// ClientCount returns the number of registered subscribers, or -1 if the command times out.
func (b *Broadcaster) ClientCount() int {
	replyCh := make(chan int, 1)
	if !b.send(getClientCountCmd{replyChannel: replyCh}) {
		return 0
	}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-b.done:
		return 0
	case <-timer.Chan():
		slog.Warn("ClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop closes every subscriber with a close frame and waits for the actor to exit.
// Safe to call more than once.
func (b *Broadcaster) Stop() {
	select {
	case <-b.stopping:
		<-b.done
		return
	default:
	}
	if !b.send(stopCmd{}) {
		<-b.done
		return
	}

	timeout := b.clock.NewTimer(b.stopTimeout)
	defer timeout.Stop()

	select {
	case <-b.done:
		slog.Info("Broadcaster stopped gracefully")
	case <-timeout.Chan():
		slog.Error("Broadcaster stop timeout exceeded",
			"timeout", b.stopTimeout,
		)
	}
}

// send queues a command unless the actor has already begun shutting down.
func (b *Broadcaster) send(cmd broadcasterCmd) bool {
	select {
	case <-b.stopping:
		return false
	default:
	}

	select {
	case b.cmdCh <- cmd:
		return true
	case <-b.stopping:
		return false
	}
}

func (b *Broadcaster) run(ticker clockwork.Ticker) {
	defer close(b.done)
	defer ticker.Stop()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Broadcaster panic recovered", "panic", r)
			select {
			case <-b.stopping:
			default:
				close(b.stopping)
			}
			b.closeAllClients("broadcaster failure")
		}
	}()

	for {
		select {
		case cmd := <-b.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				b.handleRegister(c)
			case unregisterCmd:
				b.handleUnregister(c)
			case getClientCountCmd:
				c.replyChannel <- len(b.clients)
			case stopCmd:
				close(b.stopping)
				b.handleStop()
				return
			default:
				slog.Warn("Broadcaster received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		case <-ticker.Chan():
			b.handleTick()
		}
	}
}

func (b *Broadcaster) handleRegister(c registerCmd) {
	if b.maxSubscribers > 0 && len(b.clients) >= b.maxSubscribers {
		slog.Warn("Rejecting subscriber: limit reached", "subscriber_id", c.id, "max_subscribers", b.maxSubscribers)
		if b.metrics != nil {
			b.metrics.Rejected.Inc()
		}
		closeMsg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscriber limit reached")
		_ = c.connection.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeDeadline))
		_ = c.connection.Close()
		c.errorChannel <- fmt.Errorf("%w: %d", domain.ErrSubscriberLimit, b.maxSubscribers)
		return
	}

	if old, exists := b.clients[c.id]; exists {
		old.stop()
	}

	cw := newClientWriter(c.id, c.connection, b.clock)
	b.clients[c.id] = cw

	if data, err := b.snapshot.Encode(); err != nil {
		slog.Error("Failed to encode snapshot for new subscriber", "error", err)
	} else {
		cw.enqueue(data)
	}

	if b.metrics != nil {
		b.metrics.Subscribers.Set(float64(len(b.clients)))
	}

	slog.Debug("Subscriber registered", "subscriber_id", c.id, "total_subscribers", len(b.clients))
	c.errorChannel <- nil
}

func (b *Broadcaster) handleUnregister(c unregisterCmd) {
	cw, exists := b.clients[c.id]
	if !exists {
		return
	}

	cw.stop()
	delete(b.clients, c.id)

	if b.metrics != nil {
		b.metrics.Subscribers.Set(float64(len(b.clients)))
	}
	slog.Debug("Subscriber unregistered", "subscriber_id", c.id, "remaining_subscribers", len(b.clients))
}

func (b *Broadcaster) handleTick() {
	if b.metrics != nil {
		b.metrics.Ticks.Inc()
	}
	if len(b.clients) == 0 {
		return
	}

	tickStart := time.Now()
	defer func() {
		tickDuration := time.Since(tickStart)
		if b.metrics != nil {
			b.metrics.TickDuration.Observe(tickDuration.Seconds())
		}
		if tickDuration > maxTickDuration {
			slog.Warn("Tick duration exceeded budget",
				"duration", tickDuration,
				"budget", maxTickDuration,
				"subscribers", len(b.clients),
			)
		}
	}()

	data, err := b.snapshot.Encode()
	if err != nil {
		slog.Error("Failed to encode snapshot", "error", err)
		return
	}
	if b.metrics != nil {
		b.metrics.PayloadBytes.Set(float64(len(data)))
	}

	dropped := 0
	for _, cw := range b.clients {
		if cw.isDead() {
			continue
		}
		if !cw.enqueue(data) {
			dropped++
		}
	}

	if dropped > 0 {
		slog.Debug("Dropped snapshot for slow subscribers", "count", dropped)
		if b.metrics != nil {
			b.metrics.DroppedFrames.Add(float64(dropped))
		}
	}
}

func (b *Broadcaster) handleStop() {
	total := len(b.clients)
	slog.Info("Broadcaster shutting down", "subscribers", total)
	b.closeAllClients("server shutting down")
	slog.Info("Broadcaster shutdown complete", "disconnected_subscribers", total)
}

// closeAllClients closes all subscriber connections with the given reason.
func (b *Broadcaster) closeAllClients(reason string) {
	for id, cw := range b.clients {
		cw.stopGraceful(reason)
		delete(b.clients, id)
	}
	if b.metrics != nil {
		b.metrics.Subscribers.Set(0)
	}
}
