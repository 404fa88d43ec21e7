package usecases

import (
	"log/slog"

	"github.com/samirrijal/fieldsync/internal/pkg/metrics"
)

// Outcome reports what a save or load actually did. Persistence never fails
// loudly; callers inspect the outcome instead.
type Outcome string

const (
	OutcomeSaved   Outcome = "saved"
	OutcomeLoaded  Outcome = "loaded"
	OutcomeBusy    Outcome = "busy"
	OutcomeEmpty   Outcome = "empty"
	OutcomeMissing Outcome = "missing"
	OutcomeFailed  Outcome = "failed"
)

func recordOutcome(logger *slog.Logger, blob, op string, o Outcome, err error) Outcome {
	metrics.PersistOutcomes.WithLabelValues(blob, op, string(o)).Inc()
	switch o {
	case OutcomeSaved, OutcomeLoaded:
		logger.Info(op+" completed", "blob", blob)
	case OutcomeBusy:
		logger.Warn(op+" already in progress, request dropped", "blob", blob)
	case OutcomeEmpty:
		logger.Warn("refusing to save an empty set", "blob", blob)
	case OutcomeMissing:
		logger.Info("nothing persisted yet", "blob", blob)
	case OutcomeFailed:
		logger.Error(op+" failed", "blob", blob, "error", err)
	}
	return o
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
