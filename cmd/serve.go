package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/julia/internal/cache"
	"github.com/kiesman99/julia/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server that renders tiles on demand",
	Long: `Start an HTTP server that renders Julia set tiles on request.

Tiles are addressed as /api/v1/tiles/{z}/{row}/{column}. The level given by
the image and block size is served as rendered; other levels rescale the
image so that level z is 2^z blocks wide. Rendered tiles can be cached in a
directory, Redis or MongoDB.

Examples:
  # Start server on default port 8080
  julia serve

  # Cache tiles on disk for an hour
  julia serve --cache file --cache-dir /var/cache/julia --cache-ttl 1h

  # Share a cache between several servers
  julia serve --bind 0.0.0.0 --cache redis --cache-addr redis:6379`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server configuration
	serveCmd.Flags().StringP("bind", "b", "localhost", "bind address")
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().Duration("timeout", 30*time.Second, "request timeout")

	// Cache configuration
	serveCmd.Flags().String("cache", "none", "tile cache backend (none|file|redis|mongo)")
	serveCmd.Flags().String("cache-dir", "", "directory for the file cache")
	serveCmd.Flags().String("cache-addr", "", "redis address or mongodb URI")
	serveCmd.Flags().Int("cache-db", 0, "redis database")
	serveCmd.Flags().Duration("cache-ttl", 0, "cache entry lifetime (0 keeps entries forever)")

	// Bind flags to viper
	viper.BindPFlag("server.bind", serveCmd.Flags().Lookup("bind"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.timeout", serveCmd.Flags().Lookup("timeout"))
	viper.BindPFlag("cache.backend", serveCmd.Flags().Lookup("cache"))
	viper.BindPFlag("cache.dir", serveCmd.Flags().Lookup("cache-dir"))
	viper.BindPFlag("cache.addr", serveCmd.Flags().Lookup("cache-addr"))
	viper.BindPFlag("cache.db", serveCmd.Flags().Lookup("cache-db"))
	viper.BindPFlag("cache.ttl", serveCmd.Flags().Lookup("cache-ttl"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	bind := viper.GetString("server.bind")
	port := viper.GetInt("server.port")
	timeout := viper.GetDuration("server.timeout")
	addr := fmt.Sprintf("%s:%d", bind, port)

	settings, err := loadRenderSettings()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tiles, err := cache.Open(ctx, cache.Config{
		Backend: viper.GetString("cache.backend"),
		Dir:     viper.GetString("cache.dir"),
		Addr:    viper.GetString("cache.addr"),
		DB:      viper.GetInt("cache.db"),
		TTL:     viper.GetDuration("cache.ttl"),
	})
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer tiles.Close()

	apiServer, err := server.NewServer(version, server.Config{
		Geometry:  settings.Geometry,
		Window:    settings.Window,
		Params:    settings.Params,
		Algorithm: settings.Algorithm,
		Cache:     tiles,
		CacheTTL:  viper.GetDuration("cache.ttl"),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.NewRouter(apiServer, timeout),
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()

		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "err", err)
		}
	}()

	logger.Info("Starting julia tile server", "addr", addr, "cache", cache.Name(tiles))
	fmt.Fprintf(os.Stderr, "Health check: http://%s/api/v1/health\n", addr)
	fmt.Fprintf(os.Stderr, "Tile endpoint: http://%s/api/v1/tiles/{z}/{row}/{column}\n", addr)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %v", err)
	}

	return nil
}
