package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/lodterrain/streaming"
	"golang.org/x/net/websocket"
)

const (
	sendChanSize    = 64
	receiveChanSize = 64

	// ClientIDHeader is the request header carrying the id of a viewer feed
	// client.
	ClientIDHeader = "X-Client-Id"
)

// Handler represents a viewer feed handler.
type Handler interface {
	// Handles a client connection.
	HandleConnect(conn *websocket.Conn)

	// Handles a viewpoint reported by the client.
	HandleViewerFrame(ctx context.Context, respond ResponseSender, f ViewerFrame) error

	// Handles a client's disconnection.
	HandleDisconnect(error)

	// Creates a frame receiver used to receive incoming viewer frames.
	Receiver() Receiver

	// Creates a sender used to send tick summaries.
	Sender() Sender

	// Closes the handler and releases its allocated resources.
	Close()

	// The time a client is idle before being disconnected.
	IdleTimeout() time.Duration

	// Get ClientID
	GetClientID() string
}

// Receiver receives a viewer frame and returns the number of bytes read.
type Receiver func() (ViewerFrame, int, error)

// Sender sends a tick summary and returns the number of bytes written.
type Sender func(streaming.TickSummary) (int, error)

// ResponseSender queues tick summaries to send to the client.
type ResponseSender interface {
	Send(streaming.TickSummary)
}

// Handle serves the connection with the given handler until the client
// disconnects or the context is canceled.
func Handle(ctx context.Context, conn *websocket.Conn, h Handler) {
	handler := handler{
		Conn:    conn,
		Handler: h,
	}

	handler.Handle(ctx)
}

type handler struct {
	// The WebSocket connection.
	Conn *websocket.Conn

	// The viewer feed handler.
	Handler Handler

	sendChan       chan streaming.TickSummary
	receiveChan    chan ViewerFrame
	sender         Sender
	receiver       Receiver
	disconnectChan chan error
}

func (h *handler) Handle(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.Handler.HandleConnect(h.Conn)

	h.disconnectChan = make(chan error, 8)
	h.sendChan = make(chan streaming.TickSummary, sendChanSize)
	h.receiveChan = make(chan ViewerFrame, receiveChanSize)
	h.sender = h.Handler.Sender()
	h.receiver = h.Handler.Receiver()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startSending(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startReceiving(ctx)
	}()

	idleTimeout := h.Handler.IdleTimeout()
	idleTimer := time.NewTimer(idleTimeout)
	defer idleTimer.Stop()

	responder := responseSender{
		send: h.send,
	}

loop:
	for {
		select {
		case <-ctx.Done():
			h.handleDisconnect(ctx.Err())
			break loop

		case <-idleTimer.C:
			h.disconnect(errors.New("idle connection").WithTag("duration", idleTimeout))

		case f := <-h.receiveChan:
			idleTimer.Stop()
			idleTimer.Reset(idleTimeout)

			if err := h.Handler.HandleViewerFrame(ctx, responder, f); err != nil {
				h.disconnect(errors.New("handling viewer frame failed").Wrap(err))
			}

		case err := <-h.disconnectChan:
			h.handleDisconnect(err)
			break loop
		}
	}

	cancel()
	wg.Wait()
}

func (h *handler) send(s streaming.TickSummary) {
	select {
	case h.sendChan <- s:
	default:
		h.disconnect(errors.New("send queue is full").WithTag("size", sendChanSize))
	}
}

func (h *handler) startSending(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case s := <-h.sendChan:
			if _, err := h.sender(s); err != nil {
				h.disconnect(errors.New("sending tick summary failed").Wrap(err))
				return
			}
		}
	}
}

func (h *handler) startReceiving(ctx context.Context) {
	for {
		f, _, err := h.receiver()
		if err != nil {
			h.disconnect(errors.New("receiving viewer frame failed").Wrap(err))
			return
		}

		select {
		case <-ctx.Done():
			return

		case h.receiveChan <- f:
		}
	}
}

func (h *handler) disconnect(err error) {
	select {
	case h.disconnectChan <- err:
	default:
	}
}

func (h *handler) handleDisconnect(err error) {
	h.Conn.Close()
	h.Handler.HandleDisconnect(err)
}

type responseSender struct {
	send func(streaming.TickSummary)
}

func (r responseSender) Send(s streaming.TickSummary) {
	r.send(s)
}
