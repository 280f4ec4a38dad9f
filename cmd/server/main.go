// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/trakify/internal/api/connect"
	"github.com/osa030/trakify/internal/app/playback"
	"github.com/osa030/trakify/internal/app/resolution"
	"github.com/osa030/trakify/internal/engine"
	"github.com/osa030/trakify/internal/infra/config"
	"github.com/osa030/trakify/internal/infra/engine/beep"
	"github.com/osa030/trakify/internal/infra/engine/mpd"
	"github.com/osa030/trakify/internal/infra/logger"
	"github.com/osa030/trakify/internal/infra/playlog"
	"github.com/osa030/trakify/internal/infra/spotify"
	"github.com/osa030/trakify/internal/infra/storage"
)

var (
	app        = kingpin.New("trakify-server", "trakify playback queue server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	jsonLog    = app.Flag("json-log", "Write JSON log lines to stdout").Bool()

	// check-config command
	checkConfigCmd = app.Command("check-config", "Validate the config file and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
		JSON:   *jsonLog,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	logCloser, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logCloser.Close()

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == checkConfigCmd.FullCommand() {
		if err := checkConfig(cfg); err != nil {
			zlog.Fatal().Msgf("Invalid config: %v", err)
		}
		zlog.Info().Msg("Config is valid")
		return
	}

	// Run server (defer ensures cleanup runs)
	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Content directory
	dir := storage.NewDir(cfg.Storage.Dir, cfg.Storage.Extension)
	if err := dir.Ensure(); err != nil {
		// Not fatal: each resolution reports it until the directory is fixed.
		zlog.Error().Err(err).Msgf("Content directory is not usable: dir=%s", dir.Root())
	}

	// Resolution pool
	chain, err := resolution.NewResolverChainFromConfig(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to create resolvers")
	}
	pool := resolution.NewPool(resolution.ConfigFrom(cfg), chain, dir)
	defer pool.Close()

	// Queue coordinator
	commands := make(chan engine.Command, cfg.Playback.CommandBuffer)
	events := make(chan engine.Event, cfg.Playback.EventBuffer)

	var (
		coordOpts []playback.Option
		plays     *playlog.Log
	)
	if cfg.PlayLog.IsEnabled() {
		plays, err = playlog.Open(cfg.PlayLog.Path)
		if err != nil {
			return errors.Wrap(err, "failed to open play log")
		}
		defer plays.Close()
		coordOpts = append(coordOpts, playback.WithRecorder(plays))
	}
	coord := playback.NewCoordinator(playback.Config{
		Repeat:           playback.RepeatMode(cfg.Playback.Repeat),
		HistorySize:      cfg.Playback.HistorySize,
		RestartThreshold: cfg.RestartThreshold(),
	}, commands, pool, coordOpts...)
	pool.Start(coord.CompleteResolution)

	// Playback engine
	eng, err := newEngine(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to create playback engine")
	}
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := eng.Run(ctx, commands, events); err != nil {
			zlog.Error().Err(err).Msg("Playback engine stopped")
		}
	}()
	go func() {
		if err := coord.Run(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
			zlog.Error().Err(err).Msg("Event loop stopped")
		}
	}()

	// Vanished content detection
	if cfg.Storage.WatchEnabled() {
		watcher, err := storage.NewWatcher(dir)
		if err != nil {
			zlog.Warn().Err(err).Msg("Content watcher disabled")
		} else {
			defer watcher.Close()
			go watcher.Run(ctx, coord.InvalidateContent)
		}
	}

	// Control API
	svcOpts := []apiconnect.ServiceOption{apiconnect.WithStorage(dir)}
	if plays != nil {
		svcOpts = append(svcOpts, apiconnect.WithPlayHistory(plays))
	}
	if cfg.Spotify.Enabled() {
		catalog, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return errors.Wrap(err, "failed to create Spotify client")
		}
		svcOpts = append(svcOpts, apiconnect.WithCatalog(catalog))
	} else {
		zlog.Info().Msg("Spotify credentials not configured, catalog procedures disabled")
	}
	svc := apiconnect.NewPlayerService(coord, svcOpts...)

	var handlerOpts []connect.HandlerOption
	if cfg.Server.Token != "" {
		handlerOpts = append(handlerOpts, connect.WithInterceptors(apiconnect.NewTokenInterceptor(cfg.Server.Token)))
	} else {
		zlog.Warn().Msg("API token not configured, control API is unauthenticated")
	}
	path, handler := apiconnect.NewPlayerServiceHandler(svc, handlerOpts...)
	mux := http.NewServeMux()
	mux.Handle(path, handler)

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(mux, &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	var runErr error
	select {
	case <-ctx.Done():
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "server error")
	}
	stop()

	// Graceful shutdown: end streams first so Shutdown does not wait on them.
	svc.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	select {
	case <-engineDone:
	case <-shutdownCtx.Done():
		zlog.Warn().Msg("Playback engine did not stop in time")
	}

	zlog.Info().Msg("Server stopped")
	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return runErr
}

// newEngine creates the configured playback engine.
func newEngine(cfg *config.Config) (engine.Engine, error) {
	switch cfg.Engine.Type {
	case "beep":
		return beep.New(cfg.PositionInterval())
	default:
		return mpd.New(mpd.Config{
			Network:          cfg.Engine.MPD.Network,
			Addr:             cfg.MPDAddr(),
			Password:         cfg.Engine.MPD.Password,
			MusicDir:         cfg.Engine.MPD.MusicDir,
			PositionInterval: cfg.PositionInterval(),
		}), nil
	}
}

// checkConfig builds the resolvers, which validates their settings.
func checkConfig(cfg *config.Config) error {
	chain, err := resolution.NewResolverChainFromConfig(cfg)
	if err != nil {
		return err
	}
	fmt.Printf("Engine:    %s\n", cfg.Engine.Type)
	fmt.Printf("Storage:   %s (*.%s)\n", cfg.Storage.Dir, cfg.Storage.Extension)
	fmt.Printf("Resolvers: %d\n", chain.Len())
	fmt.Printf("Repeat:    %s\n", cfg.Playback.Repeat)
	fmt.Printf("Catalog:   %t\n", cfg.Spotify.Enabled())
	return nil
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
