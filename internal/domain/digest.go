package domain

import "time"

type OutcomeStatus string

const (
	OutcomeDelivered OutcomeStatus = "delivered"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeFailed    OutcomeStatus = "failed"
)

// AccountOutcome records what happened to one account during a digest run.
type AccountOutcome struct {
	AccountID       string
	Status          OutcomeStatus
	Reason          string
	NewsCount       int
	UsedGeneralNews bool
}

// DigestReport holds statistics about a digest run.
type DigestReport struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Outcomes  map[string]AccountOutcome
	Processed int
	Delivered int
	Skipped   int
	Failed    int
}

func NewDigestReport(runID string, startedAt time.Time) *DigestReport {
	return &DigestReport{
		RunID:     runID,
		StartedAt: startedAt,
		Outcomes:  make(map[string]AccountOutcome),
	}
}

// Record stores the outcome and updates the counters. A later outcome for the
// same account replaces the earlier one.
func (r *DigestReport) Record(o AccountOutcome) {
	if prev, ok := r.Outcomes[o.AccountID]; ok {
		r.adjust(prev.Status, -1)
	} else {
		r.Processed++
	}
	r.Outcomes[o.AccountID] = o
	r.adjust(o.Status, 1)
}

func (r *DigestReport) adjust(status OutcomeStatus, delta int) {
	switch status {
	case OutcomeDelivered:
		r.Delivered += delta
	case OutcomeSkipped:
		r.Skipped += delta
	case OutcomeFailed:
		r.Failed += delta
	}
}
