package scheduling

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/apperr"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/auth"
	"github.com/k0t0k0t0/hospital-management-system-be/pkg/pagination"
	"github.com/k0t0k0t0/hospital-management-system-be/pkg/timerange"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.Clinical...))
	readGroup.GET("/doctors/available", h.AvailableDoctors)
	readGroup.GET("/doctors/:id/availability", h.CheckAvailability)
	readGroup.GET("/doctors/:id/schedule", h.Schedule)
	readGroup.GET("/doctors/:id/appointments", h.DoctorAppointments)
	readGroup.GET("/doctors/:id/examinations", h.DoctorExaminations)
	readGroup.GET("/appointments/:id", h.GetAppointment)
	readGroup.GET("/patients/:id/appointments", h.PatientAppointments)
	readGroup.GET("/patients/:id/appointments/upcoming", h.UpcomingAppointments)
	readGroup.GET("/examinations/pending", h.PendingExaminations)
	readGroup.GET("/examinations/:id", h.GetExamination)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse, auth.RoleEmergency))
	writeGroup.POST("/appointments", h.CreateAppointment)
	writeGroup.PUT("/appointments/:id/reschedule", h.Reschedule)
	writeGroup.PUT("/appointments/:id/status", h.UpdateAppointmentStatus)
	writeGroup.POST("/examinations", h.CreateExamination)
	writeGroup.PUT("/examinations/:id/status", h.UpdateExaminationStatus, auth.RequireRole(auth.RoleDoctor))
}

func httpError(err error) error {
	return apperr.HTTP(err,
		apperr.Status{Err: ErrNotFound, Code: http.StatusNotFound},
		apperr.Status{Err: ErrDoctorNotFound, Code: http.StatusNotFound},
		apperr.Status{Err: ErrPatientNotFound, Code: http.StatusNotFound},
		apperr.Status{Err: ErrDoctorUnavailable, Code: http.StatusBadRequest},
		apperr.Status{Err: ErrInvalidRange, Code: http.StatusBadRequest},
		apperr.Status{Err: ErrSlotTaken, Code: http.StatusConflict},
		apperr.Status{Err: ErrInvalidTransition, Code: http.StatusConflict},
	)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) loc() *time.Location { return h.svc.Scheduler().Location() }

func (h *Handler) queryDate(c echo.Context, name string) (time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, name+" is required")
	}
	t, err := timerange.ParseDate(v, h.loc())
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return t, nil
}

// queryRange reads from/to as dates or date-times. A missing to defaults to
// seven days after from; a date-only to covers that whole day.
func (h *Handler) queryRange(c echo.Context) (time.Time, time.Time, error) {
	fromRaw, toRaw := c.QueryParam("from"), c.QueryParam("to")
	from := timerange.StartOfDay(time.Now().In(h.loc()))
	if fromRaw != "" {
		if d, err := timerange.ParseDate(fromRaw, h.loc()); err == nil {
			from = d
		} else if t, err := timerange.ParseDateTime(fromRaw, h.loc()); err == nil {
			from = t
		} else {
			return from, from, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	to := from.AddDate(0, 0, 7)
	if toRaw != "" {
		if d, err := timerange.ParseDate(toRaw, h.loc()); err == nil {
			to = d.AddDate(0, 0, 1)
		} else if t, err := timerange.ParseDateTime(toRaw, h.loc()); err == nil {
			to = t
		} else {
			return from, to, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	return from, to, nil
}

func (h *Handler) CheckAvailability(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	raw := c.QueryParam("date_time")
	if raw == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date_time is required")
	}
	at, err := timerange.ParseDateTime(raw, h.loc())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	available := h.svc.Scheduler().CheckDoctorAvailability(c.Request().Context(), id, at)
	return c.JSON(http.StatusOK, map[string]interface{}{"doctor_id": id, "date_time": at, "available": available})
}

func (h *Handler) Schedule(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	start, err := h.queryDate(c, "start_date")
	if err != nil {
		return err
	}
	end, err := h.queryDate(c, "end_date")
	if err != nil {
		return err
	}
	schedule, err := h.svc.Scheduler().GetDoctorSchedule(c.Request().Context(), id, start, end)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, schedule)
}

func (h *Handler) AvailableDoctors(c echo.Context) error {
	date, err := h.queryDate(c, "date")
	if err != nil {
		return err
	}
	q := AvailableDoctorsQuery{
		Date:           date,
		StartTime:      c.QueryParam("start_time"),
		EndTime:        c.QueryParam("end_time"),
		Department:     c.QueryParam("department"),
		Specialization: c.QueryParam("specialization"),
	}
	start, err := timerange.ToMinutes(q.StartTime)
	if err != nil {
		return httpError(err)
	}
	end, err := timerange.ToMinutes(q.EndTime)
	if err != nil {
		return httpError(err)
	}
	if start >= end {
		return echo.NewHTTPError(http.StatusBadRequest, "start_time must be before end_time")
	}
	doctors := h.svc.Scheduler().GetAvailableDoctors(c.Request().Context(), q)
	return c.JSON(http.StatusOK, map[string]interface{}{"data": doctors, "total": len(doctors)})
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var a Appointment
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateAppointment(c.Request().Context(), &a); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, &a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) PatientAppointments(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.AppointmentsByPatient(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpcomingAppointments(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.UpcomingAppointments(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) DoctorAppointments(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	from, to, err := h.queryRange(c)
	if err != nil {
		return err
	}
	items, err := h.svc.AppointmentsByDoctor(c.Request().Context(), id, from, to)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items, "total": len(items)})
}

type rescheduleRequest struct {
	DateTime time.Time `json:"date_time"`
}

func (h *Handler) Reschedule(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req rescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.RescheduleAppointment(c.Request().Context(), id, req.DateTime)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

type statusRequest struct {
	Status       string `json:"status"`
	CancelReason string `json:"cancel_reason"`
}

func (h *Handler) UpdateAppointmentStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.UpdateAppointmentStatus(c.Request().Context(), id, req.Status, req.CancelReason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CreateExamination(c echo.Context) error {
	var e Examination
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateExamination(c.Request().Context(), &e); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, &e)
}

func (h *Handler) GetExamination(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	e, err := h.svc.GetExamination(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) DoctorExaminations(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	from, to, err := h.queryRange(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ExaminationsByDoctor(c.Request().Context(), id, from, to)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items, "total": len(items)})
}

func (h *Handler) PendingExaminations(c echo.Context) error {
	items, err := h.svc.PendingExaminations(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items, "total": len(items)})
}

func (h *Handler) UpdateExaminationStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req ExaminationUpdate
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e, err := h.svc.UpdateExaminationStatus(c.Request().Context(), id, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, e)
}
