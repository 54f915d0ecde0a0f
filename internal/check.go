package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/starford/docreg/internal/models"
	"github.com/starford/docreg/internal/registry"
)

// ErrCheckFailed is returned by Check when the tree has load errors, or
// diagnostics in strict mode.
var ErrCheckFailed = errors.New("check failed")

var (
	headerColor = color.New(color.Bold)
	errorColor  = color.New(color.FgRed)
	warnColor   = color.New(color.FgYellow)
	okColor     = color.New(color.FgGreen)
)

// Check loads and resolves the tree once and writes a report of load errors
// and diagnostics.
func Check(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// The report is the output; only errors are logged unless debugging.
	logger := newLogger(os.Stderr, max(cfg.App.LogLevel, slog.LevelError))
	svc := registry.NewService(append(cfg.Registry.Options(), registry.WithLogger(logger))...)

	report, err := svc.Refresh(ctx, "")
	if err != nil {
		return fmt.Errorf("check: %w", err)
	}
	writeReport(app.output, report)

	if err := report.Err(); err != nil {
		return fmt.Errorf("%w: %d document(s) rejected", ErrCheckFailed, len(report.LoadErrors))
	}
	if app.strict && len(report.Diagnostics) > 0 {
		return fmt.Errorf("%w: %d diagnostic(s) in strict mode", ErrCheckFailed, len(report.Diagnostics))
	}
	return nil
}

func writeReport(w io.Writer, report *registry.Report) {
	stats := report.Stats
	headerColor.Fprintf(w, "%s\n", report.Root)
	fmt.Fprintf(w, "  documents: %d", stats.Documents)
	for _, c := range models.Categories {
		fmt.Fprintf(w, "  %s=%d", c, stats.ByCategory[c])
	}
	fmt.Fprintf(w, "\n  references: %d (%d resolved, %d dangling), cycles: %d\n",
		stats.Edges, stats.Resolved, stats.Dangling, stats.Cycles)

	if len(report.LoadErrors) > 0 {
		headerColor.Fprintf(w, "\nload errors\n")
		for _, e := range report.LoadErrors {
			errorColor.Fprintf(w, "  error")
			fmt.Fprintf(w, " %s: %s\n", e.Path, e.Reason)
		}
	}

	if len(report.Diagnostics) > 0 {
		headerColor.Fprintf(w, "\ndiagnostics\n")
		for _, d := range report.Diagnostics {
			warnColor.Fprintf(w, "  %s", d.Kind)
			switch d.Kind {
			case models.DiagnosticCycle:
				fmt.Fprintf(w, " %s\n", strings.Join(d.Cycle, " -> "))
			default:
				fmt.Fprintf(w, " %s -> %s\n", d.From, d.Raw)
			}
		}
	}

	if len(report.LoadErrors) == 0 && len(report.Diagnostics) == 0 {
		okColor.Fprintf(w, "\nok\n")
	}
}
