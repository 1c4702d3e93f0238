package models

import (
	"time"
)

// OutcomeStatus is the terminal classification of one processed job.
type OutcomeStatus string

const (
	// OutcomeSuccess indicates a report artifact was generated and cached
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeFailed indicates the job failed; Retryable controls re-dispatch
	OutcomeFailed OutcomeStatus = "failed"
	// OutcomeSkipped indicates a fresh artifact already existed for the key
	OutcomeSkipped OutcomeStatus = "skipped"
)

// Job is one (symbol, run date) unit of report precompute work.
// The orchestrator creates jobs at run start and re-creates them with an
// incremented Attempt when a retryable failure is redispatched.
type Job struct {
	Symbol      string    `json:"symbol"`
	RunDate     time.Time `json:"run_date"`
	Attempt     int       `json:"attempt"`
	RequestedAt time.Time `json:"requested_at"`
}

// RunOutcome is the terminal result of processing one Job attempt.
// Exactly one outcome is recorded per dispatched attempt; the orchestrator
// synthesizes a timeout outcome when a worker never reports back.
type RunOutcome struct {
	Symbol     string        `json:"symbol"`
	Status     OutcomeStatus `json:"status"`
	ArtifactID string        `json:"artifact_id,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Retryable  bool          `json:"retryable"`
	Duration   time.Duration `json:"duration"`
}

// Success builds a success outcome referencing the cached artifact.
func Success(symbol, artifactID string) RunOutcome {
	return RunOutcome{Symbol: symbol, Status: OutcomeSuccess, ArtifactID: artifactID}
}

// Failed builds a failure outcome with a retryability classification.
func Failed(symbol, reason string, retryable bool) RunOutcome {
	return RunOutcome{Symbol: symbol, Status: OutcomeFailed, Reason: reason, Retryable: retryable}
}

// Skipped builds a skip outcome (fresh artifact already cached).
func Skipped(symbol, reason string) RunOutcome {
	return RunOutcome{Symbol: symbol, Status: OutcomeSkipped, Reason: reason}
}

// RunState tracks the fan-out run lifecycle.
type RunState string

const (
	RunStatePending     RunState = "pending"
	RunStateDispatching RunState = "dispatching"
	RunStateInFlight    RunState = "in_flight"
	RunStateAggregating RunState = "aggregating"
	RunStateComplete    RunState = "complete"
)

// JobFailure records a job that reached a terminal failure, surfaced in the
// run summary for operator attention.
type JobFailure struct {
	Symbol    string `json:"symbol"`
	Reason    string `json:"reason"`
	Attempts  int    `json:"attempts"`
	Retryable bool   `json:"retryable"`
}

// RunSummary aggregates per-job outcomes for one fan-out run.
type RunSummary struct {
	RunID      string        `json:"run_id"`
	State      RunState      `json:"state"`
	RunDate    time.Time     `json:"run_date"`
	TotalJobs  int           `json:"total_jobs"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	Duration   time.Duration `json:"duration"`
	Failures   []JobFailure  `json:"failures,omitempty"`
}
