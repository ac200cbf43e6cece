// Package metrics defines the closed set of drift metrics, their units and
// the per-run record handed to sinks.
package metrics

import (
	"sort"
	"time"

	"driftwatch/internal/plan"
)

// Metric identifies one reported value.
type Metric int

const (
	Success Metric = iota
	DriftDetected
	ResourcesRefreshed
	PendingAdd
	PendingChange
	PendingDestroy
	PendingTotal
	TotalTime
	InitTime
	PlanTime
	CacheDiskUsage

	metricCount
)

// Unit classifies a metric for sinks that carry units.
type Unit int

const (
	unitInvalid Unit = iota
	UnitNone
	UnitCount
	UnitMilliseconds
	UnitBytes
)

func (u Unit) String() string {
	switch u {
	case UnitNone:
		return "None"
	case UnitCount:
		return "Count"
	case UnitMilliseconds:
		return "Milliseconds"
	case UnitBytes:
		return "Bytes"
	default:
		return "Invalid"
	}
}

type metricInfo struct {
	name string
	unit Unit
}

var metricTable = [...]metricInfo{
	Success:            {"Success", UnitNone},
	DriftDetected:      {"DriftDetected", UnitNone},
	ResourcesRefreshed: {"ResourcesRefreshed", UnitCount},
	PendingAdd:         {"PendingAdd", UnitCount},
	PendingChange:      {"PendingChange", UnitCount},
	PendingDestroy:     {"PendingDestroy", UnitCount},
	PendingTotal:       {"PendingTotal", UnitCount},
	TotalTime:          {"TotalTime", UnitMilliseconds},
	InitTime:           {"InitTime", UnitMilliseconds},
	PlanTime:           {"PlanTime", UnitMilliseconds},
	CacheDiskUsage:     {"CacheDiskUsage", UnitBytes},
}

// Fails to compile unless every metric up to metricCount has a metricInfo entry.
var _ = [1]struct{}{}[len(metricTable)-int(metricCount)]

func (m Metric) Name() string {
	if m < 0 || m >= metricCount {
		return ""
	}
	return metricTable[m].name
}

func (m Metric) Unit() Unit {
	if m < 0 || m >= metricCount {
		return unitInvalid
	}
	return metricTable[m].unit
}

func (m Metric) String() string {
	return m.Name()
}

// All returns every metric in declaration order.
func All() []Metric {
	out := make([]Metric, 0, metricCount)
	for m := Metric(0); m < metricCount; m++ {
		out = append(out, m)
	}
	return out
}

// Sample is one metric value.
type Sample struct {
	Metric Metric
	Value  float64
}

// Record is the per-run set of values plus its repository dimension.
// Sinks treat it as read-only.
type Record struct {
	Repository string
	Timestamp  time.Time
	values     map[Metric]float64
}

// Timings are the wall-clock durations measured by the orchestrator.
type Timings struct {
	Total time.Duration
	Init  time.Duration
	Plan  time.Duration
}

// NewRecord builds the record for a successful run.
func NewRecord(repository string, ts time.Time, out plan.Outcome, t Timings, diskUsage int64) Record {
	drift := 0.0
	if out.Drifted() {
		drift = 1
	}
	return Record{
		Repository: repository,
		Timestamp:  ts,
		values: map[Metric]float64{
			Success:            1,
			DriftDetected:      drift,
			ResourcesRefreshed: float64(out.ResourcesRefreshed),
			PendingAdd:         float64(out.PendingAdd),
			PendingChange:      float64(out.PendingChange),
			PendingDestroy:     float64(out.PendingDestroy),
			PendingTotal:       float64(out.PendingTotal),
			TotalTime:          float64(t.Total.Milliseconds()),
			InitTime:           float64(t.Init.Milliseconds()),
			PlanTime:           float64(t.Plan.Milliseconds()),
			CacheDiskUsage:     float64(diskUsage),
		},
	}
}

// Value returns the value of m and whether it is set.
func (r Record) Value(m Metric) (float64, bool) {
	v, ok := r.values[m]
	return v, ok
}

// Samples returns the set values ordered by metric.
func (r Record) Samples() []Sample {
	out := make([]Sample, 0, len(r.values))
	for m, v := range r.values {
		out = append(out, Sample{Metric: m, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metric < out[j].Metric })
	return out
}
