package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/mouthtrack/internal/coach"
	"github.com/kozaktomas/mouthtrack/internal/config"
	"github.com/kozaktomas/mouthtrack/internal/database"
	"github.com/kozaktomas/mouthtrack/internal/database/postgres"
	"github.com/kozaktomas/mouthtrack/internal/database/sqlite"
	"github.com/kozaktomas/mouthtrack/internal/facemesh"
	"github.com/kozaktomas/mouthtrack/internal/motion"
)

// openStore opens the session database: PostgreSQL when DATABASE_URL is set,
// otherwise SQLite at SQLITE_PATH. It returns a nil store when both are
// empty.
func openStore(ctx context.Context, cfg *config.Config) (database.Store, string, error) {
	log := logrus.WithField("component", "database")

	switch {
	case cfg.Database.URL != "":
		store, applied, err := postgres.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, "", fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		if len(applied) > 0 {
			log.WithField("migrations", applied).Info("applied PostgreSQL migrations")
		}
		return store, "postgres", nil

	case cfg.Database.SQLitePath != "":
		store, applied, err := sqlite.Open(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to initialize SQLite: %w", err)
		}
		if len(applied) > 0 {
			log.WithField("migrations", applied).Info("applied SQLite migrations")
		}
		return store, "sqlite", nil
	}

	log.Info("no database configured, sessions will not be stored")
	return nil, "", nil
}

// requireStore opens the session database and fails when none is configured.
func requireStore(ctx context.Context, cfg *config.Config) (database.Store, error) {
	store, _, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("no session database configured: set DATABASE_URL or SQLITE_PATH")
	}
	return store, nil
}

// newCoach wires a coach with the face-mesh detector. store may be nil.
func newCoach(cfg *config.Config, store database.Store) *coach.Coach {
	deps := coach.Deps{
		Config:   cfg,
		Detector: facemesh.NewClient(cfg.FaceMesh.URL, cfg.FaceMesh.MaxImageSize, cfg.FaceMesh.Timeout),
		Logger:   logrus.StandardLogger(),
	}
	if store != nil {
		deps.Sessions = store
	}
	return coach.New(deps)
}

// runOptions builds coach options from the shared run flags.
func runOptions(cmd *cobra.Command, cfg *config.Config, kind database.Kind, action string) (coach.Options, error) {
	state, err := motion.ParseAction(action)
	if err != nil {
		return coach.Options{}, err
	}
	source := mustGetString(cmd, "source")
	if source == "" {
		return coach.Options{}, errors.New("--source is required")
	}
	if fps := mustGetInt(cmd, "fps"); fps > 0 {
		cfg.Capture.FPS = fps
	}
	return coach.Options{
		Kind:     kind,
		Action:   state,
		Patient:  strings.TrimSpace(mustGetString(cmd, "patient")),
		Source:   source,
		Record:   mustGetString(cmd, "record"),
		Duration: mustGetDuration(cmd, "duration"),
	}, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// executeRun runs one session with the session database attached.
func executeRun(cmd *cobra.Command, cfg *config.Config, opts coach.Options, sink coach.Sink, persist bool) (*coach.Result, error) {
	ctx, stop := signalContext()
	defer stop()

	var store database.Store
	if persist {
		var err error
		if store, _, err = openStore(ctx, cfg); err != nil {
			return nil, err
		}
		if store != nil {
			defer store.Close()
		}
	}

	if !mustGetBool(cmd, "json") {
		fmt.Printf("Starting %s of %q", opts.Kind, opts.Action)
		if opts.Patient != "" {
			fmt.Printf(" for %s", opts.Patient)
		}
		fmt.Println(". Press Ctrl+C to stop.")
	}
	return newCoach(cfg, store).Run(ctx, opts, sink)
}

// printResult prints a finished run.
func printResult(res *coach.Result) {
	if res.Error != "" {
		fmt.Printf("\nRun %s ended early: %s\n", res.ID, res.Error)
	} else {
		fmt.Printf("\nRun %s finished\n", res.ID)
	}
	fmt.Printf("  Duration: %s\n", res.EndedAt.Sub(res.StartedAt).Round(time.Millisecond))
	fmt.Printf("  Frames:   %d tracked, %d without a usable face", res.Frames, res.Skipped)
	if res.Pipeline.Dropped > 0 {
		fmt.Printf(", %d dropped", res.Pipeline.Dropped)
	}
	fmt.Println()
	fmt.Printf("  Maxima:   open %.3f  left %.3f  right %.3f\n",
		res.Calibration.MaxOpen, res.Calibration.MaxLeft, res.Calibration.MaxRight)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\n  STATE\tTIME\tCOUNT\tAVG SPEED")
	for _, action := range motion.Actions {
		st := res.Stats[action]
		fmt.Fprintf(w, "  %s\t%s\t%d\t%.4f\n", action, st.TotalTime.Round(time.Millisecond), st.Count, st.AvgSpeed)
	}
	w.Flush()

	switch {
	case res.Persisted:
		fmt.Println("\nSession stored.")
	case res.PersistError != "":
		fmt.Printf("\nWarning: session was not stored: %s\n", res.PersistError)
	}
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
