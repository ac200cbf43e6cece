package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"driftwatch/internal/apperrors"
	"driftwatch/internal/metrics"
)

// Sink is a destination for a run's metrics record.
type Sink interface {
	Name() string
	Ship(ctx context.Context, r metrics.Record) error
}

// Manager fans a record out to every registered sink.
type Manager struct {
	sinks  []Sink
	logger *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger}
}

func (m *Manager) AddSink(s Sink) error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	if s == nil {
		return fmt.Errorf("sink must not be nil")
	}
	m.sinks = append(m.sinks, s)
	return nil
}

// Sinks returns the registered sink names in registration order.
func (m *Manager) Sinks() []string {
	names := make([]string, 0, len(m.sinks))
	for _, s := range m.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Ship attempts every sink regardless of earlier failures. Any failure makes
// the returned error non-nil.
func (m *Manager) Ship(ctx context.Context, r metrics.Record) error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	var errs []error
	for _, s := range m.sinks {
		if err := s.Ship(ctx, r); err != nil {
			m.logger.Error("metrics sink failed", "sink", s.Name(), "error", err)
			errs = append(errs, fmt.Errorf("sink %s: %w", s.Name(), err))
			continue
		}
		m.logger.Debug("metrics shipped", "sink", s.Name())
	}
	if len(errs) > 0 {
		return apperrors.Wrap(apperrors.CodeSink, "errors shipping metrics", errors.Join(errs...))
	}
	return nil
}
