package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/lodterrain/featureflag"
	"github.com/aukilabs/lodterrain/mesh"
	"github.com/aukilabs/lodterrain/streaming"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

type testingEnv struct {
	Conn     *websocket.Conn
	Streamer *streaming.Streamer
	Viewers  *streaming.ViewerSource
}

type testHandlerOptions struct {
	idleTimeout time.Duration
	flags       []string
}

// newTestingEnv starts a streamer ticking every few milliseconds behind a
// viewer feed server, and returns a client connected to it.
func newTestingEnv(t *testing.T, opts testHandlerOptions) (testingEnv, func()) {
	var mutex sync.Mutex
	logger := t.Log

	logs.Encoder = func(v any) ([]byte, error) {
		return json.MarshalIndent(v, "", "  ")
	}

	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()

		if logger != nil {
			logger(e)
		}
	})

	errors.Encoder = json.Marshal

	if opts.idleTimeout == 0 {
		opts.idleTimeout = time.Minute
	}

	s, err := streaming.New(streaming.Config{
		Name:           "ws-test",
		RootSize:       8,
		MinChunkSize:   2,
		SizeMultiplier: 1,
		LODBaseSize:    12,
	}, mesh.FlatPlane{})
	require.NoError(t, err)

	var viewers streaming.ViewerSource

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		s.Run(ctx, &viewers, time.Millisecond*5)
	}()

	server := httptest.NewServer(websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			var h Handler = &ViewerFeedHandler{
				ClientIdleTimeout: opts.idleTimeout,
				SummaryTimeout:    time.Second,
				Viewers:           &viewers,
				Streamer:          s,
				FeatureFlags:      featureflag.New(opts.flags),
			}
			h = HandlerWithLogs(h, time.Millisecond*100)
			h = HandlerWithMetrics(h, "http://localhost")
			defer h.Close()

			Handle(ctx, conn, h)
		},
	})

	config, err := websocket.NewConfig(
		strings.ReplaceAll(server.URL, "http://", "ws://"),
		"http://localhost",
	)
	require.NoError(t, err)
	config.Header.Set("User-Agent", "ted")
	config.Header.Set(ClientIDHeader, uuid.NewString())

	conn, err := websocket.DialConfig(config)
	require.NoError(t, err)

	env := testingEnv{
		Conn:     conn,
		Streamer: s,
		Viewers:  &viewers,
	}

	return env, func() {
		conn.Close()
		server.Close()
		cancel()
		<-runDone
		s.Close()

		mutex.Lock()
		defer mutex.Unlock()
		logger = nil
	}
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame string) {
	require.NoError(t, websocket.Message.Send(conn, frame))
}

func receiveSummary(t *testing.T, conn *websocket.Conn) streaming.TickSummary {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second*5)))

	var b []byte
	require.NoError(t, websocket.Message.Receive(conn, &b))

	var s streaming.TickSummary
	require.NoError(t, json.Unmarshal(b, &s))
	return s
}
