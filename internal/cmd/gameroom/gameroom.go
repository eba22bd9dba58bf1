// Package gameroom parses the server command flags and starts the runtime.
package gameroom

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/praxisplay/gameroom/internal/content"
	"github.com/praxisplay/gameroom/internal/directory"
	"github.com/praxisplay/gameroom/internal/engine"
	entrypoint "github.com/praxisplay/gameroom/internal/platform/cmd"
	"github.com/praxisplay/gameroom/internal/registry"
	"github.com/praxisplay/gameroom/internal/stats"
	"github.com/praxisplay/gameroom/internal/storage/bbolt"
	"github.com/praxisplay/gameroom/internal/telemetry"
	"github.com/praxisplay/gameroom/internal/transport/ws"
)

const shutdownGrace = 10 * time.Second

// Config holds gameroom command configuration.
type Config struct {
	Port       int    `env:"GAMEROOM_PORT" envDefault:"8080"`
	Addr       string `env:"GAMEROOM_ADDR"`
	DataDir    string `env:"GAMEROOM_DATA_DIR" envDefault:"data"`
	ContentDir string `env:"GAMEROOM_CONTENT_DIR" envDefault:"content"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The server port")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The server listen address (overrides -port)")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory for the archive and statistics files")
	fs.StringVar(&cfg.ContentDir, "content-dir", cfg.ContentDir, "Directory holding deck.json, rules.json and invites.txt")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the gameroom server.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceGameroom, func(ctx context.Context) error {
		return serve(ctx, cfg)
	})
}

func serve(ctx context.Context, cfg Config) error {
	provider, err := content.Load(cfg.ContentDir)
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	store, err := bbolt.Open(filepath.Join(cfg.DataDir, "gameroom.db"))
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("archive close err=%v", err)
		}
	}()

	statsStore, err := stats.NewStore(filepath.Join(cfg.DataDir, "stats.json"))
	if err != nil {
		return fmt.Errorf("open stats: %w", err)
	}

	reg := registry.New()
	eng := engine.New(directory.New(), reg, provider, engine.Options{
		Stats:     statsStore,
		Archive:   store,
		Telemetry: telemetry.NewEmitter(store),
	})

	addr := cfg.Addr
	if addr == "" {
		addr = net.JoinHostPort("", strconv.Itoa(cfg.Port))
	}
	server := &http.Server{
		Addr:    addr,
		Handler: ws.NewGateway(eng, reg).Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("gameroom listening addr=%s", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	reg.CloseAll("shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
