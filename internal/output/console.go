package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"driftwatch/internal/metrics"

	"github.com/fatih/color"
)

// ConsoleSink prints a human-readable report.
type ConsoleSink struct {
	writer io.Writer
	mu     sync.Mutex

	title *color.Color
	ok    *color.Color
	drift *color.Color
	dim   *color.Color
}

func NewConsoleSink(w io.Writer, noColor bool) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	s := &ConsoleSink{
		writer: w,
		title:  color.New(color.Bold),
		ok:     color.New(color.FgGreen, color.Bold),
		drift:  color.New(color.FgYellow, color.Bold),
		dim:    color.New(color.Faint),
	}
	if noColor {
		for _, c := range []*color.Color{s.title, s.ok, s.drift, s.dim} {
			c.DisableColor()
		}
	}
	return s
}

func (s *ConsoleSink) Name() string { return "console" }

func (s *ConsoleSink) Ship(_ context.Context, r metrics.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	drift, _ := r.Value(metrics.DriftDetected)
	if _, err := s.title.Fprintf(s.writer, "Drift report for %s", r.Repository); err != nil {
		return err
	}
	if _, err := s.dim.Fprintf(s.writer, " (%s)\n", r.Timestamp.UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	if drift > 0 {
		total, _ := r.Value(metrics.PendingTotal)
		if _, err := s.drift.Fprintf(s.writer, "  DRIFT: %s pending change(s)\n", formatNumber(total)); err != nil {
			return err
		}
	} else {
		if _, err := s.ok.Fprintln(s.writer, "  IN SYNC: no pending changes"); err != nil {
			return err
		}
	}
	for _, sample := range r.Samples() {
		if sample.Metric == metrics.Success || sample.Metric == metrics.DriftDetected {
			continue
		}
		if _, err := fmt.Fprintf(s.writer, "  %-20s %s%s\n", sample.Metric.Name(), formatNumber(sample.Value), unitSuffix(sample.Metric.Unit())); err != nil {
			return err
		}
	}
	return flush(s.writer)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func unitSuffix(u metrics.Unit) string {
	switch u {
	case metrics.UnitMilliseconds:
		return " ms"
	case metrics.UnitBytes:
		return " bytes"
	default:
		return ""
	}
}

// flush pushes buffered output through to the terminal or file.
func flush(w io.Writer) error {
	switch f := w.(type) {
	case interface{ Flush() error }:
		return f.Flush()
	case *os.File:
		// Sync fails on terminals and pipes; only regular files care.
		if fi, err := f.Stat(); err == nil && fi.Mode().IsRegular() {
			return f.Sync()
		}
	}
	return nil
}
