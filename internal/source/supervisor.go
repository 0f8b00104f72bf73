package source

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Lantsov/middleman/internal/adapter/metrics"
	"github.com/Lantsov/middleman/internal/domain"
	"github.com/Lantsov/middleman/internal/platform/logging"
	"github.com/Lantsov/middleman/internal/platform/retry"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	maxFrameBytes           = 1 << 20
	maxLoggedPayload        = 256
)

// Dialer opens a websocket to a device. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Options configures a Supervisor. Zero values fall back to real clock and dialer.
type Options struct {
	Policy           retry.Policy
	ReadTimeout      time.Duration // 0 = a silent device is never timed out
	HandshakeTimeout time.Duration
	Clock            clockwork.Clock
	Dialer           Dialer
	Metrics          *metrics.SourceMetrics
}

// Supervisor maintains the link to one device and keeps its slot current.
type Supervisor struct {
	slot        domain.Slot
	slotLabel   string
	address     string
	store       domain.SlotWriter
	dialer      Dialer
	clock       clockwork.Clock
	policy      retry.Policy
	readTimeout time.Duration
	metrics     *metrics.SourceMetrics
	log         *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	state        domain.LinkState
	attempts     int
	reconnecting bool
	started      bool
	stopped      bool
	conn         *websocket.Conn
	timer        clockwork.Timer
}

// NewSupervisor creates an idle supervisor for address writing into slot.
func NewSupervisor(slot domain.Slot, address string, store domain.SlotWriter, opts Options) *Supervisor {
	address = strings.TrimSpace(address)

	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	dialer := opts.Dialer
	if dialer == nil {
		handshake := opts.HandshakeTimeout
		if handshake <= 0 {
			handshake = defaultHandshakeTimeout
		}
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshake,
		}
	}

	return &Supervisor{
		slot:        slot,
		slotLabel:   strconv.Itoa(int(slot)),
		address:     address,
		store:       store,
		dialer:      dialer,
		clock:       clock,
		policy:      opts.Policy,
		readTimeout: opts.ReadTimeout,
		metrics:     opts.Metrics,
		log:         logging.WithSource(int(slot), address),
		state:       domain.LinkDisconnected,
	}
}

// Start makes the initial connection attempt. It returns immediately; the link is
// maintained in the background until Stop is called.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.connect()
}

// Stop closes the link, cancels any pending reconnect and waits for the supervisor's goroutines.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.stopped = true
	s.state = domain.LinkStopped
	s.reconnecting = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	conn := s.conn
	s.conn = nil
	s.markDisconnectedLocked()
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	s.wg.Wait()
	s.log.Info("Source supervisor stopped")
}

// Slot returns the slot this supervisor writes.
func (s *Supervisor) Slot() domain.Slot { return s.slot }

// Address returns the trimmed device address.
func (s *Supervisor) Address() string { return s.address }

// Health returns the current state and attempt counter.
func (s *Supervisor) Health() domain.SourceHealth {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.SourceHealth{
		Slot:     s.slot,
		Address:  s.address,
		State:    s.state,
		Attempts: s.attempts,
	}
}

// connect launches one dial. Called from Start and from the reconnect timer.
func (s *Supervisor) connect() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.reconnecting = false
	s.timer = nil
	s.state = domain.LinkConnecting
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run()
}

func (s *Supervisor) run() {
	defer s.wg.Done()

	s.log.Debug("Connecting to source")
	conn, resp, err := s.dialer.DialContext(s.ctx, s.address, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		s.log.Error("Source connection error", "error", err)
		s.handleClose()
		return
	}

	if !s.handleOpen(conn) {
		_ = conn.Close()
		return
	}

	s.readLoop(conn)

	// Transport errors force the connection closed so every failure takes the close path.
	_ = conn.Close()
	s.handleClose()
}

func (s *Supervisor) handleOpen(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}

	conn.SetReadLimit(maxFrameBytes)
	s.conn = conn
	s.attempts = 0
	s.state = domain.LinkConnected
	if err := s.store.SetStatus(s.slot, domain.StatusOk); err != nil {
		s.log.Error("Failed to update slot status", "error", err)
	}
	if s.metrics != nil {
		s.metrics.Connected.WithLabelValues(s.slotLabel).Set(1)
	}

	s.log.Info("Connected to source")
	return true
}

func (s *Supervisor) readLoop(conn *websocket.Conn) {
	var idle clockwork.Timer
	if s.readTimeout > 0 {
		// Closing the connection unblocks ReadMessage, which then takes the normal close path.
		idle = s.clock.AfterFunc(s.readTimeout, func() {
			s.log.Warn("Source idle, closing link", "timeout", s.readTimeout)
			_ = conn.Close()
		})
		defer idle.Stop()
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.logReadError(err)
			return
		}
		if idle != nil {
			idle.Reset(s.readTimeout)
		}
		s.handleMessage(data)
	}
}

func (s *Supervisor) handleMessage(data []byte) {
	reading, err := domain.ParseReading(data)
	if err != nil {
		s.log.Error("Failed to parse source reading", "error", err, "payload", truncate(data))
		if s.metrics != nil {
			s.metrics.ParseErrors.WithLabelValues(s.slotLabel).Inc()
		}
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A frame racing with Stop must not resurrect the slot.
	if s.state != domain.LinkConnected {
		return
	}
	if err := s.store.Set(s.slot, reading); err != nil {
		s.log.Error("Failed to store reading", "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.Messages.WithLabelValues(s.slotLabel).Inc()
	}
	s.log.Debug("Reading received", "payload", truncate(data))
}

func (s *Supervisor) handleClose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn = nil
	if s.stopped {
		return
	}

	s.markDisconnectedLocked()
	s.state = domain.LinkDisconnected
	s.log.Warn("Source connection closed")
	s.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms the single reconnect timer. s.mu must be held.
func (s *Supervisor) scheduleReconnectLocked() {
	if s.reconnecting {
		return
	}

	if s.policy.Exhausted(s.attempts) {
		s.state = domain.LinkPermanentlyStopped
		if s.metrics != nil {
			s.metrics.Exhausted.WithLabelValues(s.slotLabel).Set(1)
		}
		s.log.Error("Reconnect attempts exhausted, source will stay disconnected until restart",
			"attempts", s.attempts,
			"max_attempts", s.policy.MaxLabel(),
		)
		return
	}

	s.reconnecting = true
	s.attempts++
	if s.metrics != nil {
		s.metrics.ReconnectAttempts.WithLabelValues(s.slotLabel).Inc()
	}
	s.log.Info("Scheduling reconnect",
		"attempt", s.attempts,
		"max_attempts", s.policy.MaxLabel(),
		"delay", s.policy.Interval,
	)
	s.timer = s.clock.AfterFunc(s.policy.Interval, s.connect)
}

func (s *Supervisor) markDisconnectedLocked() {
	if err := s.store.SetStatus(s.slot, domain.StatusNotConnected); err != nil {
		s.log.Error("Failed to update slot status", "error", err)
	}
	if s.metrics != nil {
		s.metrics.Connected.WithLabelValues(s.slotLabel).Set(0)
	}
}

func (s *Supervisor) logReadError(err error) {
	var closeErr *websocket.CloseError
	switch {
	case errors.As(err, &closeErr):
		s.log.Info("Source closed the connection", "code", closeErr.Code, "reason", closeErr.Text)
	case s.isStopping():
		s.log.Debug("Source read interrupted by shutdown")
	default:
		s.log.Error("Source read error", "error", err)
	}
}

func (s *Supervisor) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func truncate(data []byte) string {
	if len(data) <= maxLoggedPayload {
		return string(data)
	}
	return string(data[:maxLoggedPayload]) + "..."
}
