package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	_ "github.com/silbinarywolf/preferdiscretegpu"

	"github.com/nodefleet/fleetview/pkg/api"
	"github.com/nodefleet/fleetview/pkg/config"
	"github.com/nodefleet/fleetview/pkg/geo"
	"github.com/nodefleet/fleetview/pkg/metrics"
	"github.com/nodefleet/fleetview/pkg/nodeengine"
	"github.com/nodefleet/fleetview/pkg/sources"
	"github.com/nodefleet/fleetview/pkg/state"
	"github.com/nodefleet/fleetview/pkg/stream"
)

var (
	configPath     = flag.String("config", "", "Path to a fleetview YAML config file")
	headlessFlag   = flag.Bool("headless", false, "Run without a local window (Xvfb rendering active)")
	renderWidth    = flag.Int("width", 0, "Internal rendering width (default from config)")
	renderHeight   = flag.Int("height", 0, "Internal rendering height (default from config)")
	renderScale    = flag.Float64("scale", 0, "Projection scale, 0 fits the world to the canvas")
	projectionFlag = flag.String("projection", "", "Map projection: naturalearth or mollweide")
	windowWidth    = flag.Int("window-width", 1280, "Initial window width (non-headless only)")
	windowHeight   = flag.Int("window-height", 720, "Initial window height (non-headless only)")
	tpsFlag        = flag.Int("tps", 30, "Ticks per second (engine updates)")
	captureDir     = flag.String("capture-dir", "", "Directory for PNG frame captures (key C)")
	debugFlag      = flag.Bool("debug", false, "Log event rates and placement details")
	seedFlag       = flag.Int64("seed", 0, "Random seed for jitter and animation, 0 uses the clock")
)

func main() {
	flag.Parse()
	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	fv := cfg.Fleetview
	if *renderWidth > 0 {
		fv.Map.Width = *renderWidth
	}
	if *renderHeight > 0 {
		fv.Map.Height = *renderHeight
	}
	if *projectionFlag != "" {
		fv.Map.Projection = *projectionFlag
	}
	debug := *debugFlag || fv.Logging.Debug

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	world, err := sources.LoadWorld(fv.Map)
	if err != nil {
		log.Fatalf("Failed to load world map: %v", err)
	}
	proj, err := geo.NewProjection(fv.Map.Projection, fv.Map.Width, fv.Map.Height, *renderScale)
	if err != nil {
		log.Fatalf("Invalid projection: %v", err)
	}

	seed := *seedFlag
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	engine := nodeengine.NewEngine(fv.Map.Width, fv.Map.Height, world, proj, rand.New(rand.NewSource(seed)))
	engine.FPS = *tpsFlag
	engine.FrameCaptureDir = *captureDir
	engine.Debug = debug
	engine.Highlight = stream.NewHighlighter(fv.Stream.Highlight)

	if engine.Locator, err = sources.LoadLocator(fv.Map); err != nil {
		log.Printf("[GEO] GeoIP fallback disabled: %v", err)
	}
	defer engine.Close()

	store, err := state.Open(fv.State)
	if err != nil {
		log.Fatalf("Failed to open state store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("[STATE] Error closing store: %v", err)
		}
	}()
	engine.Store = store

	engine.Metrics = metrics.New()
	engine.Metrics.WatchTicklog(engine.Ticks)
	if fv.Metrics.Enabled {
		srv := engine.Metrics.NewServer(fv.Metrics.Addr)
		go func() {
			log.Printf("[METRICS] Serving on %s", fv.Metrics.Addr)
			if err := srv.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[METRICS] Server error: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	client := api.NewClient(fv.API.BaseURL, fv.API.Token, fv.API.Timeout)

	var sess *stream.Session
	if fv.Stream.URL != "" {
		ch := stream.NewWSChannel(fv.Stream.URL, fv.API.Token)
		ch.OnFrame = func(env stream.Envelope) { engine.Metrics.CountFrame(env.Event) }
		ch.OnConnect = engine.Metrics.CountConnect
		sess = stream.StartSession(ch)

		go func() {
			waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if err := ch.WaitConnected(waitCtx); err != nil {
				engine.Notify(stream.LevelError, "Event channel unavailable, tick logs disabled")
				log.Printf("[STREAM] Not connected: %v", err)
				return
			}
			notify := stream.MultiNotifier{engine, stream.LogNotifier{}}
			sub, err := stream.OpenTickFeed(ctx, client, ch, stream.LogSpecs(fv.Stream.Subscriptions), engine.Ticks, nil, notify)
			if err != nil {
				return
			}
			sess.Track(sub)
		}()
	} else {
		log.Println("[STREAM] No stream URL configured, tick-log panel stays empty")
	}

	go engine.StartSnapshotLoop(ctx, client, fv.API.PollInterval)
	go engine.StartMetricsLoop(ctx)

	engine.InitPulseTexture()
	engine.GenerateBackground()

	if *headlessFlag {
		log.Println("Running in HEADLESS mode (Rendering active).")
	} else {
		ebiten.SetWindowSize(*windowWidth, *windowHeight)
		ebiten.SetWindowTitle("Fleet Node Map")
	}
	runErr := engine.Run(ctx)
	stop()
	// Unsubscribe while the connection is still open.
	if sess != nil {
		sess.Shutdown()
	}
	if runErr != nil {
		log.Fatal(runErr)
	}
}
