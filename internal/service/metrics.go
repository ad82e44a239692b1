package service

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/prakyath/spree-commerse/internal/domain"
)

// Operation outcomes.
const (
	outcomeSuccess = "success"
	outcomeInvalid = "invalid"
	outcomeError   = "error"
)

var (
	// LineItemOperations counts line item mutations by operation and outcome.
	LineItemOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "line_item_operations_total",
			Help: "Total number of line item operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	// LineItemValidationFailures counts failed validation rules by field.
	LineItemValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "line_item_validation_failures_total",
			Help: "Total number of failed line item validation rules by field",
		},
		[]string{"field"},
	)
)

func recordOutcome(operation string, err error) {
	var verrs domain.ValidationErrors
	switch {
	case err == nil:
		LineItemOperations.WithLabelValues(operation, outcomeSuccess).Inc()
	case errors.As(err, &verrs):
		LineItemOperations.WithLabelValues(operation, outcomeInvalid).Inc()
		for _, fe := range verrs {
			LineItemValidationFailures.WithLabelValues(fe.Field).Inc()
		}
	default:
		LineItemOperations.WithLabelValues(operation, outcomeError).Inc()
	}
}
