package output

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"driftwatch/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const pushJob = "driftwatch"

var camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)

// PushgatewaySink pushes gauges grouped by repository.
type PushgatewaySink struct {
	url string
}

func NewPushgatewaySink(url string) *PushgatewaySink {
	return &PushgatewaySink{url: url}
}

func (s *PushgatewaySink) Name() string { return "pushgateway" }

// GaugeName maps a metric to its Prometheus name, e.g. PlanTime ->
// driftwatch_plan_time_milliseconds.
func GaugeName(m metrics.Metric) string {
	name := "driftwatch_" + strings.ToLower(camelBoundary.ReplaceAllString(m.Name(), "${1}_${2}"))
	switch m.Unit() {
	case metrics.UnitMilliseconds:
		name += "_milliseconds"
	case metrics.UnitBytes:
		name += "_bytes"
	}
	return name
}

func (s *PushgatewaySink) Ship(ctx context.Context, r metrics.Record) error {
	if s.url == "" {
		return fmt.Errorf("pushgateway: url is empty")
	}

	registry := prometheus.NewRegistry()
	for _, sample := range r.Samples() {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: GaugeName(sample.Metric),
			Help: fmt.Sprintf("Drift metric %s (%s).", sample.Metric.Name(), sample.Metric.Unit()),
		})
		g.Set(sample.Value)
		if err := registry.Register(g); err != nil {
			return fmt.Errorf("pushgateway: register %s: %w", sample.Metric.Name(), err)
		}
	}

	err := push.New(s.url, pushJob).
		Gatherer(registry).
		Grouping(RepositoryTag, r.Repository).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("pushgateway: push: %w", err)
	}
	return nil
}
