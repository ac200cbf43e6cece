package output

import (
	"time"

	"driftwatch/internal/metrics"
	"driftwatch/internal/plan"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func driftRecord() metrics.Record {
	out := plan.Outcome{
		Status:             plan.StatusChangesPending,
		ResourcesRefreshed: 12,
		PendingAdd:         1,
		PendingChange:      2,
		PendingDestroy:     0,
		PendingTotal:       3,
		SummaryFound:       true,
	}
	return metrics.NewRecord("acme/infra", testTime, out, metrics.Timings{
		Total: 4 * time.Second,
		Init:  1500 * time.Millisecond,
		Plan:  2 * time.Second,
	}, 4096)
}

func cleanRecord() metrics.Record {
	return metrics.NewRecord("acme/infra", testTime, plan.Outcome{Status: plan.StatusClean, ResourcesRefreshed: 5}, metrics.Timings{Total: time.Second}, 0)
}
