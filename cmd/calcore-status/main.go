// calcore-status prints the calibration standing of every registered
// instrument from the configured storage backend.
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"calcore/internal/core"
)

var (
	logLevel string
	envFile  string
	typeOnly string
)

func main() {
	if err := NewCommand().Execute(); err != nil {
		logrus.Fatal(err)
	}
}

// NewCommand builds the root command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calcore-status",
		Short: "List instruments and their calibration standing",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogger()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	flags.StringVar(&envFile, "env-file", ".env", "environment file with CALCORE_* settings")
	cmd.Flags().StringVarP(&typeOnly, "type", "t", "", "restrict output to one instrument type")

	return cmd
}

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05.000",
		FullTimestamp:   true,
	})
	return nil
}

func run(ctx context.Context) error {
	if err := godotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		logrus.Debugf("no %s file, using process environment", envFile)
	}

	engine := core.NewDefaultRulesEngine()
	store, err := core.OpenPersistentStore(engine)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	svc := core.NewService(store, core.WithLogger(core.NewLogrusLogger(logrus.StandardLogger())))
	rows, err := svc.EvaluateAll(ctx)
	if err != nil {
		return fmt.Errorf("evaluate instruments: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REFERENCE\tTYPE\tSECTION\tSTATUS\tLAST\tDUE\tDAYS")
	printed := 0
	for _, row := range rows {
		if typeOnly != "" && string(row.Instrument.Type) != typeOnly {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			row.Instrument.Reference,
			row.Instrument.Type,
			row.Instrument.Section,
			row.Report.Status,
			formatDate(row.Report.LastCalibration),
			formatDate(row.Report.CalibrationDue),
			formatDays(row.Report),
		)
		printed++
	}
	if err := w.Flush(); err != nil {
		return err
	}
	logrus.Infof("listed %d instruments", printed)
	return nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02")
}

func formatDays(r core.StatusReport) string {
	if !r.DueKnown {
		return "-"
	}
	if r.DueToday() {
		return "today"
	}
	return fmt.Sprintf("%d", r.DaysUntilDue)
}
