package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/revolck/advancemais-front-sub011/core/attendance"
)

type attendanceApi struct {
	svc      *attendance.Service
	validate *validator.Validate
}

func registerAttendanceAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *attendance.Service,
	validate *validator.Validate,
) {
	api := attendanceApi{
		svc:      svc,
		validate: validate,
	}

	ag := g.Group("/attendance", jwt)
	ag.GET("", api.retrieve)
	ag.GET("/history", api.history)
	ag.POST("/suggestion", api.suggest)
	ag.PUT("", api.upsert)
}

// Handlers

func (api *attendanceApi) retrieve(ctx echo.Context) error {
	key := keyFromQuery(ctx)
	rec, err := api.svc.GetRecord(ctx.Request().Context(), key)
	if err != nil {
		return errors.Wrap(err, "getting attendance record")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *attendanceApi) history(ctx echo.Context) error {
	key := keyFromQuery(ctx)
	entries, err := api.svc.ListHistory(ctx.Request().Context(), key)
	if err != nil {
		return errors.Wrap(err, "listing attendance history")
	}
	if entries == nil {
		entries = []attendance.HistoryEntry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *attendanceApi) suggest(ctx echo.Context) error {
	var data attendance.SuggestionQuery
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SuggestionQuery")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	status, ev := api.svc.Suggest(data)
	suggestionsTotal.WithLabelValues(string(status)).Inc()

	return ctx.JSON(http.StatusOK, SuggestionResponse{Status: status, Evidence: ev})
}

func (api *attendanceApi) upsert(ctx echo.Context) error {
	var data attendance.UpsertAttendance
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpsertAttendance")
	}

	// actor comes from the verified token, never from the payload
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	data.ActorRole = claims.Role
	data.ActorName = claims.Name

	if err = data.Validate(api.validate); err != nil {
		upsertFailuresTotal.WithLabelValues(errKind(err)).Inc()
		return err
	}

	rec, err := api.svc.Upsert(ctx.Request().Context(), data)
	if err != nil {
		upsertFailuresTotal.WithLabelValues(errKind(err)).Inc()
		return errors.Wrap(err, "upserting attendance")
	}
	upsertsTotal.WithLabelValues(string(rec.Status)).Inc()

	return ctx.JSON(http.StatusOK, rec)
}

// SuggestionResponse carries a recomputed-on-demand recommendation and
// the evidence it was derived from. Neither is ever persisted.
type SuggestionResponse struct {
	Status   attendance.Status   `json:"status"`
	Evidence attendance.Evidence `json:"evidence"`
}

func keyFromQuery(ctx echo.Context) attendance.Key {
	return attendance.Key{
		CourseID:  ctx.QueryParam("course_id"),
		ClassID:   ctx.QueryParam("class_id"),
		LessonID:  ctx.QueryParam("lesson_id"),
		StudentID: ctx.QueryParam("student_id"),
	}
}
