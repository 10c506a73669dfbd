package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/mouthtrack/internal/database"
	"github.com/kozaktomas/mouthtrack/internal/motion"
	"github.com/kozaktomas/mouthtrack/internal/report"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Browse stored sessions",
	Long:  "List, inspect, chart and delete sessions stored in the session database (DATABASE_URL or SQLITE_PATH).",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show SESSION_ID",
	Short: "Print one session with a summary of its measurements",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsChartCmd = &cobra.Command{
	Use:   "chart SESSION_ID",
	Short: "Render the measurements of a session as an HTML chart",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsChart,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete SESSION_ID",
	Short: "Delete a session and its measurements",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsChartCmd, sessionsDeleteCmd)

	sessionsListCmd.Flags().String("patient", "", "Only sessions of this patient")
	sessionsListCmd.Flags().String("kind", "", "Only sessions of this kind (calibration or training)")
	sessionsListCmd.Flags().Int("limit", 50, "Maximum number of sessions")
	sessionsListCmd.Flags().Bool("json", false, "Print the sessions as JSON")
	sessionsShowCmd.Flags().Bool("json", false, "Print the session as JSON")
	sessionsChartCmd.Flags().StringP("output", "o", "-", "Output file (- for stdout)")
}

// withStore opens the session database for the duration of fn.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, store database.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	store, err := requireStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, store)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	filter := database.SessionFilter{
		Patient: mustGetString(cmd, "patient"),
		Limit:   mustGetInt(cmd, "limit"),
	}
	if v := mustGetString(cmd, "kind"); v != "" {
		kind, ok := database.ParseKind(v)
		if !ok {
			return fmt.Errorf("invalid --kind %q: expected calibration or training", v)
		}
		filter.Kind = kind
	}

	return withStore(cmd, func(ctx context.Context, store database.Store) error {
		sessions, err := store.ListSessions(ctx, filter)
		if err != nil {
			return fmt.Errorf("listing sessions: %w", err)
		}
		if mustGetBool(cmd, "json") {
			if sessions == nil {
				sessions = []database.Session{}
			}
			return outputJSON(sessions)
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTARTED\tPATIENT\tKIND\tMODE\tDURATION\tFRAMES")
		for i := range sessions {
			s := &sessions[i]
			patient := s.Patient
			if patient == "" {
				patient = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
				s.ID, s.StartedAt.Local().Format("2006-01-02 15:04"), patient, s.Kind, s.Mode,
				s.Duration().Round(time.Second), s.Frames)
		}
		return w.Flush()
	})
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(ctx context.Context, store database.Store) error {
		session, err := store.GetSession(ctx, args[0])
		if err != nil {
			return fmt.Errorf("getting session: %w", err)
		}
		records, err := store.GetMeasurements(ctx, args[0])
		if err != nil {
			return fmt.Errorf("getting measurements: %w", err)
		}
		summary := report.Summarize(records)

		if mustGetBool(cmd, "json") {
			return outputJSON(struct {
				*database.Session
				Summary report.Summary `json:"summary"`
			}{session, summary})
		}

		fmt.Printf("Session %s\n", session.ID)
		fmt.Printf("  Patient:  %s\n", session.Patient)
		fmt.Printf("  Kind:     %s %s\n", session.Kind, session.Mode)
		fmt.Printf("  Started:  %s\n", session.StartedAt.Local().Format(time.RFC1123))
		fmt.Printf("  Duration: %s\n", session.Duration().Round(time.Millisecond))
		fmt.Printf("  Frames:   %d tracked, %d skipped\n", session.Frames, session.Skipped)
		fmt.Printf("  Maxima:   open %.3f  left %.3f  right %.3f\n", session.MaxOpen, session.MaxLeft, session.MaxRight)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "\n  AXIS\tMEAN\tSTDDEV\tMIN\tMAX")
		for _, axis := range []struct {
			name string
			s    report.AxisSummary
		}{
			{"vertical", summary.Vertical},
			{"horizontal", summary.Horizontal},
			{"displacement", summary.Displacement},
		} {
			fmt.Fprintf(w, "  %s\t%.4f\t%.4f\t%.4f\t%.4f\n", axis.name, axis.s.Mean, axis.s.StdDev, axis.s.Min, axis.s.Max)
		}
		w.Flush()

		fmt.Print("\n  Frames per state:")
		for _, state := range []motion.State{motion.Neutral, motion.Open, motion.Left, motion.Right} {
			fmt.Printf(" %s=%d", state, summary.States[state])
		}
		fmt.Println()

		if len(session.Repetitions) > 0 {
			w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "\n  REP\tPEAK\tMAX REACHED")
			for _, r := range session.Repetitions {
				fmt.Fprintf(w, "  %d\t%.0f%%\t%t\n", r.Repetition, r.Peak, r.MaxReached)
			}
			w.Flush()
		}
		return nil
	})
}

func runSessionsChart(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(ctx context.Context, store database.Store) error {
		session, err := store.GetSession(ctx, args[0])
		if err != nil {
			return fmt.Errorf("getting session: %w", err)
		}
		records, err := store.GetMeasurements(ctx, args[0])
		if err != nil {
			return fmt.Errorf("getting measurements: %w", err)
		}

		title := fmt.Sprintf("%s %s", session.Kind, session.Mode)
		if session.Patient != "" {
			title = session.Patient + ": " + title
		}
		return writeChart(mustGetString(cmd, "output"), records, report.ChartOptions{
			Title:    title,
			Subtitle: session.StartedAt.Format("2006-01-02 15:04:05"),
		})
	})
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(ctx context.Context, store database.Store) error {
		if err := store.DeleteSession(ctx, args[0]); err != nil {
			return fmt.Errorf("deleting session: %w", err)
		}
		fmt.Printf("Session %s deleted\n", args[0])
		return nil
	})
}
