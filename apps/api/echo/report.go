package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/faridzul/jadual/core/timetable"
)

type reportHandler struct {
	svc *timetable.Service
}

func registerReportAPI(g *echo.Group, svc *timetable.Service) {
	h := reportHandler{svc: svc}
	g.GET("/report", h.get)
}

// get returns the conflict report of one term. The report is computed on
// demand from data at rest; this layer only shuttles validated primitives.
func (h reportHandler) get(ctx echo.Context) error {
	session := ctx.QueryParam("session")
	if session == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session is required")
	}
	semester, err := strconv.Atoi(ctx.QueryParam("semester"))
	if err != nil || semester < 1 || semester > 3 {
		return echo.NewHTTPError(http.StatusBadRequest, "semester must be 1-3")
	}

	report, err := h.svc.Analyze(ctx.Request().Context(), session, semester)
	if err != nil {
		return err
	}

	if rawLecturer := ctx.QueryParam("lecturer"); rawLecturer != "" {
		workerNo, err := strconv.Atoi(rawLecturer)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "lecturer must be a worker no")
		}
		clashes, err := h.svc.VenueClashes(ctx.Request().Context(), session, semester, workerNo)
		if err != nil {
			return err
		}
		report.VenueClashes = clashes
	}

	return ctx.JSON(http.StatusOK, report)
}
