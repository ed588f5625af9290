package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/lodterrain/featureflag"
	"github.com/aukilabs/lodterrain/streaming"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const defaultSummaryTimeout = time.Second

// SummaryWaiter is implemented by the streamers whose tick summaries are sent
// back to viewer feed clients.
type SummaryWaiter interface {
	Summary() streaming.TickSummary
	WaitSummary(ctx context.Context, after uint64) (streaming.TickSummary, error)
}

// ViewerFeedHandler is a handler that publishes the viewpoints reported by a
// client to a viewer source, and answers each of them with the summary of
// the first tick that used it.
type ViewerFeedHandler struct {
	// The time a client is idle before being disconnected.
	ClientIdleTimeout time.Duration

	// The maximum time to wait for the tick that uses a reported viewpoint.
	// No summary is sent when it expires. Defaults to one second.
	SummaryTimeout time.Duration

	// The source where reported viewpoints are published.
	Viewers *streaming.ViewerSource

	// The streamer ticking with the viewer source.
	Streamer SummaryWaiter

	FeatureFlags featureflag.FeatureFlag

	conn     *websocket.Conn
	clientID string
}

func (h *ViewerFeedHandler) HandleConnect(conn *websocket.Conn) {
	h.conn = conn

	if req := conn.Request(); req != nil {
		h.clientID = req.Header.Get(ClientIDHeader)
	}
	if h.clientID == "" {
		h.clientID = uuid.NewString()
	}
}

func (h *ViewerFeedHandler) HandleViewerFrame(ctx context.Context, respond ResponseSender, f ViewerFrame) error {
	after := h.Streamer.Summary().Tick
	update := h.Viewers.Set(f.Viewer())

	if h.FeatureFlags.IsSet(featureflag.FlagDisableViewerFeedSummary) {
		return nil
	}

	timeout := h.SummaryTimeout
	if timeout <= 0 {
		timeout = defaultSummaryTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		summary, err := h.Streamer.WaitSummary(ctx, after)
		if err != nil {
			// The viewpoint stays published for the next tick.
			return nil
		}

		if summary.ViewerUpdate >= update {
			respond.Send(summary)
			return nil
		}
		after = summary.Tick
	}
}

func (h *ViewerFeedHandler) HandleDisconnect(_ error) {
}

func (h *ViewerFeedHandler) Receiver() Receiver {
	return func() (ViewerFrame, int, error) {
		var b []byte
		if err := websocket.Message.Receive(h.conn, &b); err != nil {
			return ViewerFrame{}, 0, err
		}

		f, err := DecodeViewerFrame(b)
		return f, len(b), err
	}
}

func (h *ViewerFeedHandler) Sender() Sender {
	return func(s streaming.TickSummary) (int, error) {
		b, err := json.Marshal(s)
		if err != nil {
			return 0, err
		}

		if err := websocket.Message.Send(h.conn, string(b)); err != nil {
			return 0, err
		}
		return len(b), nil
	}
}

func (h *ViewerFeedHandler) Close() {
}

func (h *ViewerFeedHandler) IdleTimeout() time.Duration {
	return h.ClientIdleTimeout
}

func (h *ViewerFeedHandler) GetClientID() string {
	return h.clientID
}
