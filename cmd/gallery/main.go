// Package main provides the gallery command line client.
// Usage: gallery [-config FILE] <list|upload|watch|view> [flags]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gallery-feed/internal/config"
	"gallery-feed/internal/infra/assetstore"
	"gallery-feed/internal/infra/imageapi"
	"gallery-feed/internal/observability/logging"
	"gallery-feed/internal/resilience/circuitbreaker"
	"gallery-feed/internal/usecase/feed"
	"gallery-feed/internal/usecase/selection"
	"gallery-feed/internal/usecase/upload"

	"golang.org/x/sync/errgroup"
)

const usage = `Usage: gallery [-config FILE] <command> [flags]

Commands:
  list    [-pages N] [-output text|json]      print the feed
  upload  -file PATH -title T -description D   host an image and register it
  watch   [-schedule CRON]                     refresh the feed on a schedule
  view    [-output text|json] ID               show one record

Examples:
  gallery list -pages 2
  gallery upload -file cat.png -title "Cat" -description "Sleeping"
  gallery watch -schedule "@every 1m"
`

// app holds the wired client components shared by every command.
type app struct {
	cfg       *config.ClientConfig
	logger    *slog.Logger
	api       *imageapi.Client
	assets    *assetstore.Client
	cache     *feed.Cache
	pipeline  *upload.Pipeline
	selection *selection.State
	out       io.Writer
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("gallery", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := global.String("config", "", "YAML configuration file")
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}

	logger := logging.NewFromEnv()
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	a, err := newApp(cfg, logger, stdout)
	if err != nil {
		logger.Error("failed to initialize client", slog.Any("error", err))
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer a.cache.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	name, rest := global.Arg(0), global.Args()[1:]
	var cmd func(context.Context, []string) error
	switch name {
	case "list":
		cmd = a.list
	case "upload":
		cmd = a.upload
	case "watch":
		cmd = a.watch
	case "view":
		cmd = a.view
	default:
		fmt.Fprintf(stderr, "Error: unknown command %q\n\n", name)
		global.Usage()
		return 2
	}

	if err := a.serve(ctx, func(ctx context.Context) error { return cmd(ctx, rest) }); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		var ue usageError
		if errors.As(err, &ue) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		logger.Error("command failed", slog.String("command", name), slog.Any("error", err))
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// newApp wires the adapters into the feed cache, upload pipeline and selection state.
func newApp(cfg *config.ClientConfig, logger *slog.Logger, out io.Writer) (*app, error) {
	api, err := imageapi.New(imageapi.Config{
		BaseURL:        cfg.APIBaseURL,
		Timeout:        cfg.APITimeout,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, imageapi.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	cache := feed.NewCache(api, feed.WithLogger(logger))

	opts := []upload.Option{upload.WithLogger(logger)}
	var assets *assetstore.Client
	if cfg.AssetUploadsEnabled() {
		assets = assetstore.NewClient(assetstore.Config{
			UploadURL: cfg.AssetUploadURL,
			APIKey:    cfg.AssetAPIKey,
		}, logger)
		opts = append(opts, upload.WithAssetUploader(assets))
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		api:       api,
		assets:    assets,
		cache:     cache,
		pipeline:  upload.NewPipeline(api, cache, opts...),
		selection: selection.New(),
		out:       out,
	}, nil
}

// serve runs cmd, alongside the metrics server when one is configured.
// The metrics server stops when cmd returns.
func (a *app) serve(ctx context.Context, cmd func(context.Context) error) error {
	if a.cfg.MetricsAddr == "" {
		return cmd(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	cmdCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		defer cancel()
		return cmd(cmdCtx)
	})
	g.Go(func() error {
		return runMetricsServer(cmdCtx, a.logger, a.cfg.MetricsAddr, a.cache, a.breakers()...)
	})
	return g.Wait()
}

func (a *app) breakers() []*circuitbreaker.CircuitBreaker {
	out := []*circuitbreaker.CircuitBreaker{a.api.Breaker()}
	if a.assets != nil {
		out = append(out, a.assets.Breaker())
	}
	return out
}

// usageError marks a bad invocation of a command.
type usageError struct {
	msg string
}

func (e usageError) Error() string { return e.msg }
