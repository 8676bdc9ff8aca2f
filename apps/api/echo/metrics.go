package echoapi

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/revolck/advancemais-front-sub011/core"
)

var (
	upsertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_upserts_total",
		Help: "Accepted attendance upserts by resulting status.",
	}, []string{"status"})

	upsertFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_upsert_failures_total",
		Help: "Rejected attendance upserts by error kind.",
	}, []string{"kind"})

	suggestionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_suggestions_total",
		Help: "Computed attendance suggestions by status.",
	}, []string{"status"})
)

func errKind(err error) string {
	switch errors.Cause(err).(type) {
	case *core.ValidationError, validator.ValidationErrors:
		return "validation"
	case *core.AuthorizationError:
		return "authorization"
	case *core.MalformedStateError:
		return "malformed_state"
	}
	return "internal"
}
