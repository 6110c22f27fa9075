package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/nodefleet/fleetview/pkg/api"
	"github.com/nodefleet/fleetview/pkg/config"
	"github.com/nodefleet/fleetview/pkg/stream"
)

type Globals struct {
	Config    string `short:"c" type:"path" help:"Path to a fleetview YAML config file."`
	APIURL    string `name:"api-url" env:"FLEETVIEW_API_URL" help:"Management API base URL."`
	StreamURL string `name:"stream-url" env:"FLEETVIEW_STREAM_URL" help:"Event channel websocket URL."`
	Token     string `env:"FLEETVIEW_TOKEN" help:"Bearer token for the API and the event channel."`
	Debug     bool   `help:"Log every frame and reconnect."`
}

type CLI struct {
	Globals

	Ticks   TicksCmd   `cmd:"" help:"Stream tick logs from a Bob node."`
	Service ServiceCmd `cmd:"" help:"Tail the log of one service on one host."`
	Nodes   NodesCmd   `cmd:"" help:"Print the node classification table."`
	Select  SelectCmd  `cmd:"" help:"Set the servers highlighted on the map."`
	Raw     RawCmd     `cmd:"" help:"Show statistics for every frame on the event channel."`
}

// load reads the config file, if any, and applies flag overrides.
func (g *Globals) load() (config.FleetviewConfig, error) {
	cfg := config.Default()
	if g.Config != "" {
		var err error
		if cfg, err = config.LoadConfig(g.Config); err != nil {
			return config.FleetviewConfig{}, err
		}
	}
	fv := cfg.Fleetview
	if g.APIURL != "" {
		fv.API.BaseURL = g.APIURL
	}
	if g.StreamURL != "" {
		fv.Stream.URL = g.StreamURL
	}
	if g.Token != "" {
		fv.API.Token = g.Token
	}
	if g.Debug {
		fv.Logging.Debug = true
	}
	return fv, nil
}

func (g *Globals) client(fv config.FleetviewConfig) (*api.Client, error) {
	if fv.API.BaseURL == "" {
		return nil, fmt.Errorf("no API URL: set --api-url or api.base_url")
	}
	return api.NewClient(fv.API.BaseURL, fv.API.Token, fv.API.Timeout), nil
}

// connect starts a channel session and waits for its first connection. The
// connection outlives ctx until the session is shut down.
func (g *Globals) connect(ctx context.Context, fv config.FleetviewConfig, onFrame func(stream.Envelope)) (*stream.Session, error) {
	if fv.Stream.URL == "" {
		return nil, fmt.Errorf("no stream URL: set --stream-url or stream.url")
	}
	ch := stream.NewWSChannel(fv.Stream.URL, fv.API.Token)
	ch.OnFrame = onFrame
	if fv.Logging.Debug && onFrame == nil {
		ch.OnFrame = func(env stream.Envelope) {
			log.Printf("[STREAM] %s frame (%d bytes)", env.Event, len(env.Data))
		}
	}
	sess := stream.StartSession(ch)

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := ch.WaitConnected(waitCtx); err != nil {
		sess.Shutdown()
		return nil, fmt.Errorf("connect to %s: %w", fv.Stream.URL, err)
	}
	return sess, nil
}

func main() {
	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("fleet-tail"),
		kong.Description("Terminal views of fleet nodes and their live logs."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	err := kctx.Run(&cli.Globals)
	kctx.FatalIfErrorf(err)
}
