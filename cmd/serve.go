package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/mouthtrack/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the mouthtrack web server.
The web server provides the live dashboard and an HTTP API to start
calibration and training runs, follow them as server-sent events or over a
WebSocket, edit calibration maxima and browse stored sessions.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (0 = WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (empty = WEB_HOST)")
	serveCmd.Flags().String("source", "", "Default frame source of runs started without one")
	serveCmd.Flags().StringSlice("allow-source", nil, "Additional frame source API clients may request (repeatable; adds to WEB_ALLOWED_SOURCES)")
	serveCmd.Flags().Int("fps", 0, "Frame rate of directory and snapshot sources (0 = CAPTURE_FPS)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
	if fps := mustGetInt(cmd, "fps"); fps > 0 {
		cfg.Capture.FPS = fps
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, backend, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	deps := web.Deps{
		Config:         cfg,
		Backend:        backend,
		DefaultSource:  mustGetString(cmd, "source"),
		AllowedSources: append(cfg.Web.SourceList(), mustGetStringSlice(cmd, "allow-source")...),
		Logger:         logrus.StandardLogger(),
	}
	if store != nil {
		defer store.Close()
		deps.Sessions = store
	}
	deps.Coach = newCoach(cfg, store)

	server := web.NewServer(deps)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting mouthtrack on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
