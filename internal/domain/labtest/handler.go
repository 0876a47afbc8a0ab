package labtest

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/k0t0k0t0/hospital-management-system-be/internal/domain/patient"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/apperr"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.Clinical...))
	readGroup.GET("/lab-tests/pending", h.Pending)
	readGroup.GET("/lab-tests/:id", h.Get)
	readGroup.GET("/patients/:id/lab-tests", h.ByPatient)

	api.POST("/lab-tests", h.Request, auth.RequireRole(auth.RoleDoctor, auth.RoleEmergency))

	labGroup := api.Group("", auth.RequireRole(auth.RoleLabTechnician))
	labGroup.PUT("/lab-tests/:id/status", h.UpdateStatus)
	labGroup.PUT("/lab-tests/:id/assign", h.Assign)
}

func httpError(err error) error {
	return apperr.HTTP(err,
		apperr.Status{Err: ErrNotFound, Code: http.StatusNotFound},
		apperr.Status{Err: patient.ErrNotFound, Code: http.StatusNotFound},
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

func (h *Handler) Request(c echo.Context) error {
	var t LabTest
	if err := c.Bind(&t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if t.RequestedBy == uuid.Nil {
		if id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context())); err == nil {
			t.RequestedBy = id
		}
	}
	if err := h.svc.Request(c.Request().Context(), &t); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, &t)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	t, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ByPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ByPatient(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items, "total": len(items)})
}

func (h *Handler) Pending(c echo.Context) error {
	items, err := h.svc.Pending(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items, "total": len(items)})
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var u StatusUpdate
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t, err := h.svc.UpdateStatus(c.Request().Context(), id, u)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) Assign(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body struct {
		TechnicianID uuid.UUID `json:"technician_id"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.TechnicianID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "technician_id is required")
	}
	t, err := h.svc.Assign(c.Request().Context(), id, body.TechnicianID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}
