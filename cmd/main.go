package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"reflect"
	"sync"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/lodterrain/featureflag"
	terrainhttp "github.com/aukilabs/lodterrain/http"
	"github.com/aukilabs/lodterrain/mesh"
	"github.com/aukilabs/lodterrain/smoketest"
	"github.com/aukilabs/lodterrain/streaming"
	"github.com/aukilabs/lodterrain/tuning"
	lwebsocket "github.com/aukilabs/lodterrain/websocket"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

var (
	// The lodterrain version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "lodterrain_info",
		Help:        "lodterrain information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

const naturalMaxLODLevel = -1

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr               string        `cli:""        env:"LODTERRAIN_ADDR"                 help:"Listening address for viewer feeds and tree snapshots."`
	AdminAddr          string        `cli:""        env:"LODTERRAIN_ADMIN_ADDR"           help:"Admin listening address."`
	PublicEndpoint     string        `cli:""        env:"LODTERRAIN_PUBLIC_ENDPOINT"      help:"The public endpoint where this server is reachable."`
	LogLevel           string        `cli:""        env:"LODTERRAIN_LOG_LEVEL"            help:"Log level (debug|info|warning|error)."`
	LogIndent          bool          `cli:""        env:"LODTERRAIN_LOG_INDENT"           help:"Indent logs."`
	ProfileFile        string        `cli:""        env:"LODTERRAIN_PROFILE_FILE"         help:"A YAML terrain profile that overrides the terrain options."`
	FrameDuration      time.Duration `cli:",hidden" env:"LODTERRAIN_FRAME_DURATION"       help:"The duration of a terrain frame."`
	ClientIdleTimeout  time.Duration `cli:",hidden" env:"LODTERRAIN_CLIENT_IDLE_TIMEOUT"  help:"Time until an idle viewer feed client will be disconnected."`
	SummaryTimeout     time.Duration `cli:",hidden" env:"LODTERRAIN_SUMMARY_TIMEOUT"      help:"The maximum time to wait for the tick answering a viewer frame."`
	LogSummaryInterval time.Duration `cli:",hidden" env:"LODTERRAIN_LOG_SUMMARY_INTERVAL" help:"The duration between each log summary."`
	Terrain            terrainConfig `cli:",hidden" env:"-"                               help:"Terrain configuration."`
	Events             eventsConfig  `cli:",hidden" env:"-"                               help:"Event pusher configuration."`
	FeatureFlags       []string      `cli:",hidden" env:"LODTERRAIN_FEATURE_FLAGS"        help:"Comma separated feature flags"`
	Version            bool          `cli:""        env:"-"                               help:"Show version."`
	Help               bool          `cli:""        env:"-"                               help:"Show help."`
}

type terrainConfig struct {
	X              float64 `cli:",hidden" env:"LODTERRAIN_TERRAIN_X"               help:"The X coordinate of the terrain lower-left corner."`
	Y              float64 `cli:",hidden" env:"LODTERRAIN_TERRAIN_Y"               help:"The Y coordinate of the terrain lower-left corner."`
	Size           float64 `cli:",hidden" env:"LODTERRAIN_TERRAIN_SIZE"            help:"The side length of the terrain."`
	MinChunkSize   float64 `cli:",hidden" env:"LODTERRAIN_TERRAIN_MIN_CHUNK_SIZE"  help:"The size under which chunks are not split."`
	SizeMultiplier float64 `cli:",hidden" env:"LODTERRAIN_TERRAIN_SIZE_MULTIPLIER" help:"Scales the distance under which chunks are split."`
	LODBaseSize    int     `cli:",hidden" env:"LODTERRAIN_TERRAIN_LOD_BASE_SIZE"   help:"The chunk size the detail levels are derived from."`
	MaxLODLevel    int     `cli:",hidden" env:"LODTERRAIN_TERRAIN_MAX_LOD_LEVEL"   help:"Caps the detail level index. -1 keeps the natural maximum."`
	PoolCapacity   int     `cli:",hidden" env:"LODTERRAIN_TERRAIN_POOL_CAPACITY"   help:"The maximum number of pooled chunks per key. 0 is unbounded."`
	MeshWorkers    int     `cli:",hidden" env:"LODTERRAIN_TERRAIN_MESH_WORKERS"    help:"The number of goroutines generating meshes. 0 uses every CPU."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"LODTERRAIN_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"LODTERRAIN_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"LODTERRAIN_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"LODTERRAIN_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:               ":4100",
		AdminAddr:          ":18191",
		PublicEndpoint:     "http://localhost:4100",
		LogLevel:           logs.InfoLevel.String(),
		FrameDuration:      time.Millisecond * 16,
		ClientIdleTimeout:  time.Minute,
		SummaryTimeout:     time.Second,
		LogSummaryInterval: time.Minute,
		Terrain: terrainConfig{
			Size:           4096,
			MinChunkSize:   32,
			SizeMultiplier: 1,
			LODBaseSize:    120,
			MaxLODLevel:    naturalMaxLODLevel,
		},
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts the lodterrain server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     metrics.HTTPTransport(http.DefaultTransport),
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "lodterrain",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	streamerConf, err := loadStreamerConfig(conf)
	if err != nil {
		logs.Fatal(err)
	}

	streamer, err := streaming.New(streamerConf, mesh.FlatPlane{})
	if err != nil {
		logs.Fatal(errors.New("creating terrain streamer failed").Wrap(err))
	}
	defer streamer.Close()

	var viewers streaming.ViewerSource

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		streamer.Run(ctx, &viewers, conf.FrameDuration)
	}()

	readinessCheck := func() bool {
		return streamer.Summary().Tick > 0
	}

	var service http.ServeMux
	service.Handle("/health", terrainhttp.HandleWithCORS(http.HandlerFunc(terrainhttp.HandleHealthCheck)))
	service.Handle("/ready", terrainhttp.HandleWithCORS(terrainhttp.HandleReadyCheck(readinessCheck)))
	service.Handle("/version", terrainhttp.HandleWithCORS(terrainhttp.HandleVersion(version)))
	service.Handle("/tree", terrainhttp.HandleWithCORS(terrainhttp.HandleTree(streamer)))
	service.Handle("/smoketest", smoketest.HandleSmokeTest(ctx, smoketest.Options{
		Endpoint:  conf.PublicEndpoint,
		UserAgent: "lodterrain/" + version,
		SendResult: func(_ context.Context, res smoketest.Result) error {
			logs.WithTag("to_endpoint", res.ToEndpoint).
				WithTag("status", res.Status).
				WithTag("latency_ms", res.LatencyMilliSec).
				Info("smoke test done")
			return nil
		},
	}))
	service.Handle("/viewer", websocket.Server{
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			var h lwebsocket.Handler = &lwebsocket.ViewerFeedHandler{
				ClientIdleTimeout: conf.ClientIdleTimeout,
				SummaryTimeout:    conf.SummaryTimeout,
				Viewers:           &viewers,
				Streamer:          streamer,
				FeatureFlags:      streamerConf.FeatureFlags,
			}
			h = lwebsocket.HandlerWithLogs(h, conf.LogSummaryInterval)
			h = lwebsocket.HandlerWithMetrics(h, conf.PublicEndpoint)
			defer h.Close()

			lwebsocket.Handle(ctx, conn, h)
		},
	})

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", terrainhttp.HandleHealthCheck)
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))
	admin.HandleFunc("/ready", terrainhttp.HandleReadyCheck(readinessCheck))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("terrain", streamerConf.Name).
		WithTag("terrain_size", streamerConf.RootSize).
		WithTag("lod_levels", streamer.LOD().Levels()).
		WithTag("feature_flags", streamerConf.FeatureFlags.Strings()).
		Info("starting lodterrain server")

	terrainhttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
			terrainhttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)

	wg.Wait()
}

func loadStreamerConfig(conf config) (streaming.Config, error) {
	streamerConf := streaming.Config{
		RootPosition:       mgl64.Vec2{conf.Terrain.X, conf.Terrain.Y},
		RootSize:           conf.Terrain.Size,
		MinChunkSize:       conf.Terrain.MinChunkSize,
		SizeMultiplier:     conf.Terrain.SizeMultiplier,
		LODBaseSize:        conf.Terrain.LODBaseSize,
		PoolCapacity:       conf.Terrain.PoolCapacity,
		MeshWorkers:        conf.Terrain.MeshWorkers,
		LogSummaryInterval: conf.LogSummaryInterval,
		FeatureFlags:       featureflag.New(conf.FeatureFlags),
	}

	if level := conf.Terrain.MaxLODLevel; level != naturalMaxLODLevel {
		streamerConf.MaxLODLevel = &level
	}

	if conf.ProfileFile != "" {
		profile, err := tuning.Load(conf.ProfileFile)
		if err != nil {
			return streaming.Config{}, err
		}
		profile.Apply(&streamerConf)
	}

	return streamerConf, nil
}

func validateConfig(conf config) error {
	if _, err := url.ParseRequestURI(conf.PublicEndpoint); err != nil {
		return errors.New("invalid public endpoint").Wrap(err)
	}

	if conf.FrameDuration <= 0 {
		return errors.New("frame duration must be positive").
			WithTag("frame_duration", conf.FrameDuration)
	}

	if conf.ClientIdleTimeout <= 0 {
		return errors.New("client idle timeout must be positive").
			WithTag("client_idle_timeout", conf.ClientIdleTimeout)
	}

	return nil
}
