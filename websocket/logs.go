package websocket

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/lodterrain/streaming"
	"golang.org/x/net/websocket"
)

const clientIDTag = "client_id"

// HandlerWithLogs wraps the handler with logs and periodically logs a summary
// of the frames exchanged with the client.
func HandlerWithLogs(h Handler, summaryInterval time.Duration) Handler {
	ctx, cancel := context.WithCancel(context.Background())

	handler := &handlerWithLogs{
		Handler:            h,
		summaryInterval:    summaryInterval,
		closeSummaryWorker: cancel,
		counter:            make(map[string]int),
	}

	if summaryInterval > 0 {
		go handler.startSummaryWorker(ctx)
	}
	return handler
}

type handlerWithLogs struct {
	Handler

	userAgent string

	summaryInterval    time.Duration
	closeSummaryWorker func()
	counterMutex       sync.Mutex
	counter            map[string]int
}

func (h *handlerWithLogs) HandleConnect(conn *websocket.Conn) {
	h.Handler.HandleConnect(conn)

	if req := conn.Request(); req != nil {
		h.userAgent = req.UserAgent()
	}

	logs.WithTag(clientIDTag, h.GetClientID()).
		WithTag("user_agent", h.userAgent).
		Info("new viewer feed client is connected")
}

func (h *handlerWithLogs) HandleViewerFrame(ctx context.Context, respond ResponseSender, f ViewerFrame) error {
	err := h.Handler.HandleViewerFrame(ctx, respond, f)
	if err != nil {
		logs.WithTag(clientIDTag, h.GetClientID()).
			WithTag("frame", f).
			Warn(errors.New("handling viewer frame failed").Wrap(err))
	}
	return err
}

func (h *handlerWithLogs) HandleDisconnect(err error) {
	h.Handler.HandleDisconnect(err)

	entry := logs.WithTag(clientIDTag, h.GetClientID())
	if err != nil && !isClosedConnError(err) {
		entry = entry.WithTag("reason", err.Error())
	}
	entry.Info("viewer feed client disconnected")
}

func (h *handlerWithLogs) Receiver() Receiver {
	receive := h.Handler.Receiver()

	return func() (ViewerFrame, int, error) {
		f, n, err := receive()
		if err != nil && !isClosedConnError(err) {
			logs.WithTag(clientIDTag, h.GetClientID()).
				Warn(errors.New("receiving viewer frame failed").Wrap(err))
		} else if err == nil {
			logs.WithTag(clientIDTag, h.GetClientID()).
				WithTag("frame", f).
				Debug("viewer frame received")
			h.incCounter(viewerFrameMsgType)
		}
		return f, n, err
	}
}

func (h *handlerWithLogs) Sender() Sender {
	send := h.Handler.Sender()

	return func(s streaming.TickSummary) (int, error) {
		n, err := send(s)
		if err != nil && !isClosedConnError(err) {
			logs.WithTag(clientIDTag, h.GetClientID()).
				WithTag("tick", s.Tick).
				Warn(errors.New("sending tick summary failed").Wrap(err))
		} else if err == nil {
			h.incCounter(tickSummaryMsgType)
		}
		return n, err
	}
}

func (h *handlerWithLogs) Close() {
	h.Handler.Close()
	h.closeSummaryWorker()
	h.logSummary()
}

func (h *handlerWithLogs) startSummaryWorker(ctx context.Context) {
	ticker := time.NewTicker(h.summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			h.logSummary()
		}
	}
}

func (h *handlerWithLogs) incCounter(msgType string) {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	h.counter[msgType]++
}

func (h *handlerWithLogs) logSummary() {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	if len(h.counter) == 0 {
		return
	}

	entry := logs.
		WithTag(clientIDTag, h.GetClientID()).
		WithTag("time_interval", h.summaryInterval)

	for k, v := range h.counter {
		entry = entry.WithTag(k, v)
		delete(h.counter, k)
	}

	entry.Info("viewer feed summary")
}

func isClosedConnError(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
