package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/park285/cubetimer/internal/adapter/solvepresenter"
	"github.com/park285/cubetimer/internal/jsonx"
	"github.com/park285/cubetimer/internal/session"
	"github.com/park285/cubetimer/pkg/solvedto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

type wsOptions struct {
	outbound       int
	pingInterval   time.Duration
	writeTimeout   time.Duration
	readLimit      int64
	originPatterns []string
}

func defaultWSOptions() wsOptions {
	return wsOptions{
		outbound:     256,
		pingInterval: 20 * time.Second,
		writeTimeout: 5 * time.Second,
		readLimit:    4096,
	}
}

// outbox queues encoded frames for the writer. State frames are
// latest-wins in a single slot; every other frame is queued in order and
// never dropped: when that queue is full overflow fires once and the
// socket is closed.
type outbox struct {
	frames   chan []byte
	state    chan []byte
	mu       sync.Mutex
	overflow func()
	full     atomic.Bool
}

func newOutbox(size int, overflow func()) *outbox {
	if size < 1 {
		size = 1
	}
	return &outbox{
		frames:   make(chan []byte, size),
		state:    make(chan []byte, 1),
		overflow: overflow,
	}
}

func (o *outbox) push(frameType string, data []byte) {
	if frameType == string(session.EventState) {
		o.mu.Lock()
		select {
		case <-o.state:
		default:
		}
		o.state <- data
		o.mu.Unlock()
		return
	}
	select {
	case o.frames <- data:
	default:
		if o.full.CompareAndSwap(false, true) && o.overflow != nil {
			o.overflow()
		}
	}
}

func (o *outbox) overflowed() bool { return o.full.Load() }

// handleWS drives one timer session per socket. Frames in are ClientFrame,
// frames out are ServerFrame. Only state frames are coalesced; a client too
// slow for the rest is disconnected.
func (s *Server) handleWS(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		OriginPatterns:  s.ws.originPatterns,
	})
	if err != nil {
		s.logger.Warn("ws_accept_failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(s.ws.readLimit)

	ctl := s.controller(c)
	log := s.logger.With(zap.String("owner_id", ctl.OwnerID()), zap.String("conn_id", uuid.NewString()))
	log.Debug("ws_session_opened")

	ctx, cancel := context.WithCancel(c.Request.Context())
	box := newOutbox(s.ws.outbound, func() {
		log.Warn("ws_outbound_full")
		cancel()
	})

	enqueue := func(frame solvedto.ServerFrame) {
		data, err := jsonx.Marshal(frame)
		if err != nil {
			log.Error("ws_frame_encode_failed", zap.String("type", frame.Type), zap.Error(err))
			return
		}
		box.push(frame.Type, data)
	}

	unsub := ctl.Subscribe(func(ev session.Event) {
		enqueue(solvepresenter.ToServerFrame(ev))
	})
	snap := ctl.Snapshot()
	enqueue(solvedto.ServerFrame{Type: string(session.EventState), State: solvepresenter.ToDTOTimer(snap)})
	enqueue(solvedto.ServerFrame{Type: string(session.EventScramble), Scramble: ctl.Scramble()})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx, conn, box, log)
		cancel()
	}()

	reason := s.readLoop(ctx, conn, ctl, enqueue, log)

	unsub()
	ctl.Close()
	cancel()
	<-writerDone

	status, text := websocket.StatusNormalClosure, "bye"
	switch {
	case box.overflowed():
		status, text = websocket.StatusTryAgainLater, "client too slow"
	case reason != nil:
		status = websocket.StatusInternalError
	}
	_ = conn.Close(status, text)
	log.Debug("ws_session_closed", zap.NamedError("reason", reason))
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, box *outbox, log *zap.Logger) {
	ping := time.NewTicker(s.ws.pingInterval)
	defer ping.Stop()
	failures := 0
	write := func(data []byte) bool {
		wctx, cancel := context.WithTimeout(ctx, s.ws.writeTimeout)
		err := conn.Write(wctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			log.Debug("ws_write_failed", zap.Error(err))
			return false
		}
		return true
	}
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-box.frames:
			if !write(data) {
				return
			}
		case data := <-box.state:
			if !write(data) {
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				failures++
				if failures >= 2 {
					log.Info("ws_ping_failed", zap.Error(err))
					return
				}
				continue
			}
			failures = 0
		}
	}
}

// readLoop returns nil on a clean client close or cancellation.
func (s *Server) readLoop(
	ctx context.Context,
	conn *websocket.Conn,
	ctl *session.Controller,
	enqueue func(solvedto.ServerFrame),
	log *zap.Logger,
) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		var frame solvedto.ClientFrame
		if err := jsonx.Unmarshal(data, &frame); err != nil {
			enqueue(errorFrame("malformed frame"))
			continue
		}
		s.dispatch(ctx, ctl, frame, enqueue, log)
	}
}

func (s *Server) dispatch(
	ctx context.Context,
	ctl *session.Controller,
	frame solvedto.ClientFrame,
	enqueue func(solvedto.ServerFrame),
	log *zap.Logger,
) {
	switch frame.Type {
	case solvedto.ClientPress:
		ctl.Press()
	case solvedto.ClientRelease:
		ctl.Release()
	case solvedto.ClientReset:
		ctl.Reset()
	case solvedto.ClientPenalty:
		choice, ok := session.ParseChoice(frame.Penalty)
		if !ok {
			enqueue(errorFrame("unknown penalty " + frame.Penalty))
			return
		}
		err := ctl.ChoosePenalty(ctx, choice)
		switch {
		case err == nil:
		case errors.Is(err, session.ErrNotStopped):
			enqueue(errorFrame(err.Error()))
		case errors.Is(err, session.ErrUnauthenticated), errors.Is(err, session.ErrNonPositiveTime):
			// already reported through the session's own events
		default:
			log.Warn("ws_penalty_failed", zap.String("penalty", frame.Penalty), zap.Error(err))
		}
	default:
		enqueue(errorFrame("unknown frame type " + frame.Type))
	}
}

func errorFrame(msg string) solvedto.ServerFrame {
	return solvedto.ServerFrame{Type: string(session.EventError), Message: msg}
}
