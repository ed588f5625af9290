// Package smoketest checks that a terrain server answers viewer frames with
// tick summaries.
package smoketest

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/lodterrain/streaming"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"

	defaultTimeout = time.Second * 10
	viewerPath     = "/viewer"
)

// Request describes the server to test and the viewpoint sent to it.
type Request struct {
	Endpoint     string        `json:"endpoint"`
	Timeout      time.Duration `json:"timeout"`
	X            float64       `json:"x"`
	Y            float64       `json:"y"`
	Z            float64       `json:"z"`
	ViewDistance float64       `json:"view_distance"`
}

type Result struct {
	FromEndpoint    string                 `json:"from_endpoint"`
	ToEndpoint      string                 `json:"to_endpoint"`
	Status          string                 `json:"status"`
	LatencyMilliSec float64                `json:"latency_ms"`
	Summary         *streaming.TickSummary `json:"summary,omitempty"`
	Error           string                 `json:"error,omitempty"`
}

type Options struct {
	Endpoint   string
	UserAgent  string
	SendResult func(context.Context, Result) error
}

// HandleSmokeTest returns a handler that runs a smoke test against the
// endpoint given in the request body. The test runs in the background and
// its result is passed to opts.SendResult.
func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		b, err := io.ReadAll(r.Body)
		if err != nil {
			logs.Warn(errors.New("reading body failed").Wrap(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		var req Request
		if err := json.Unmarshal(b, &req); err != nil || req.Endpoint == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		go func() {
			res, err := Run(ctx, opts.Endpoint, opts.UserAgent, req)
			if err != nil {
				logs.Warn(err)
			}

			if opts.SendResult == nil {
				return
			}
			if err := opts.SendResult(ctx, res); err != nil {
				logs.WithTag("from_endpoint", opts.Endpoint).
					WithTag("to_endpoint", req.Endpoint).
					Warn(errors.New("sending smoke test result failed").Wrap(err))
			}
		}()

		w.WriteHeader(http.StatusOK)
	}
}

// Run connects to the viewer feed of req.Endpoint, sends one viewer frame and
// waits for the tick summary answering it. The returned result is filled
// even when an error is returned.
func Run(ctx context.Context, from, userAgent string, req Request) (Result, error) {
	res := Result{
		FromEndpoint: from,
		ToEndpoint:   req.Endpoint,
		Status:       StatusFailed,
	}

	summary, latency, err := run(ctx, from, userAgent, req)
	if err != nil {
		err = errors.New("smoke test failed").
			WithTag("to_endpoint", req.Endpoint).
			Wrap(err)
		res.Error = err.Error()
		return res, err
	}

	res.Status = StatusSuccess
	res.LatencyMilliSec = float64(latency) / float64(time.Millisecond)
	res.Summary = &summary
	return res, nil
}

func run(ctx context.Context, from, userAgent string, req Request) (streaming.TickSummary, time.Duration, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	origin := from
	if origin == "" {
		origin = "http://localhost"
	}

	config, err := websocket.NewConfig(viewerURL(req.Endpoint), origin)
	if err != nil {
		return streaming.TickSummary{}, 0, errors.New("creating websocket config failed").Wrap(err)
	}
	if userAgent != "" {
		config.Header.Set("User-Agent", userAgent)
	}

	conn, err := config.DialContext(ctx)
	if err != nil {
		return streaming.TickSummary{}, 0, errors.New("dialing viewer feed failed").Wrap(err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	frame, err := json.Marshal(map[string]float64{
		"x":             req.X,
		"y":             req.Y,
		"z":             req.Z,
		"view_distance": req.ViewDistance,
	})
	if err != nil {
		return streaming.TickSummary{}, 0, errors.New("encoding viewer frame failed").Wrap(err)
	}

	start := time.Now()
	if err := websocket.Message.Send(conn, string(frame)); err != nil {
		return streaming.TickSummary{}, 0, errors.New("sending viewer frame failed").Wrap(err)
	}

	var b []byte
	if err := websocket.Message.Receive(conn, &b); err != nil {
		return streaming.TickSummary{}, 0, errors.New("receiving tick summary failed").Wrap(err)
	}
	latency := time.Since(start)

	var summary streaming.TickSummary
	if err := json.Unmarshal(b, &summary); err != nil {
		return streaming.TickSummary{}, 0, errors.New("decoding tick summary failed").Wrap(err)
	}
	return summary, latency, nil
}

func viewerURL(endpoint string) string {
	u := strings.TrimSuffix(endpoint, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}

	if !strings.HasSuffix(u, viewerPath) {
		u += viewerPath
	}
	return u
}
