package broadcast

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Lantsov/middleman/internal/platform/logging"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	messageBufferSize = 16
)

// clientWriter owns every write to one subscriber connection.
type clientWriter struct {
	id          string
	connection  *websocket.Conn
	log         *slog.Logger
	sendChannel chan []byte
	doneChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	dead        atomic.Bool
}

func newClientWriter(id string, connection *websocket.Conn, clock clockwork.Clock) *clientWriter {
	cw := &clientWriter{
		id:          id,
		connection:  connection,
		log:         logging.WithSubscriber(id),
		sendChannel: make(chan []byte, messageBufferSize),
		doneChannel: make(chan struct{}),
	}
	cw.configurePongHandler()
	ticker := clock.NewTicker(pingInterval)
	cw.wg.Add(1)
	go cw.run(ticker)
	return cw
}

// enqueue queues a frame without blocking. It reports false when the buffer is full.
func (cw *clientWriter) enqueue(msg []byte) bool {
	select {
	case cw.sendChannel <- msg:
		return true
	default:
		return false
	}
}

func (cw *clientWriter) isDead() bool {
	return cw.dead.Load()
}

func (cw *clientWriter) run(ticker clockwork.Ticker) {
	defer ticker.Stop()
	defer cw.wg.Done()

	for {
		select {
		case msg := <-cw.sendChannel:
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				cw.fail("write", err)
				return
			}
		case <-ticker.Chan():
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				cw.fail("ping", err)
				return
			}
		case <-cw.doneChannel:
			return
		}
	}
}

// fail closes the connection so the subscriber's read loop ends and unregisters it.
func (cw *clientWriter) fail(op string, err error) {
	cw.dead.Store(true)
	cw.log.Debug("Subscriber write failed", "op", op, "error", err)
	_ = cw.connection.Close()
}

func (cw *clientWriter) stop() {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

// stopGraceful sends a close frame with reason before closing.
func (cw *clientWriter) stopGraceful(reason string) {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)

		// The run goroutine must exit before we write, gorilla allows one concurrent writer.
		cw.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
		cw.updateWriteDeadline()
		_ = cw.connection.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

func (cw *clientWriter) configurePongHandler() {
	cw.updateReadDeadline()
	cw.connection.SetPongHandler(func(string) error {
		cw.updateReadDeadline()
		return nil
	})
}

func (cw *clientWriter) updateWriteDeadline() {
	_ = cw.connection.SetWriteDeadline(time.Now().Add(writeDeadline))
}

func (cw *clientWriter) updateReadDeadline() {
	_ = cw.connection.SetReadDeadline(time.Now().Add(pongDeadline))
}
