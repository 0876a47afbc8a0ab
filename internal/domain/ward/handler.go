package ward

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/k0t0k0t0/hospital-management-system-be/internal/domain/patient"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/apperr"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/auth"
	"github.com/k0t0k0t0/hospital-management-system-be/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.Clinical...))
	readGroup.GET("/wards", h.List)
	readGroup.GET("/wards/resources/low-stock", h.LowStock)
	readGroup.GET("/wards/:id/status", h.Status)
	readGroup.GET("/wards/:id/assignments", h.ActiveAssignments)

	careGroup := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse, auth.RoleEmergency))
	careGroup.POST("/wards/:id/assignments", h.Assign)
	careGroup.PUT("/assignments/:id/discharge", h.Discharge)

	staffGroup := api.Group("", auth.RequireRole(auth.RoleNurse))
	staffGroup.PUT("/wards/:id/beds/:bed_id/status", h.SetBedStatus)
	staffGroup.PUT("/wards/:id/resources/:resource_id", h.UpdateResource)

	adminGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	adminGroup.POST("/wards", h.Create)
	adminGroup.POST("/wards/:id/beds", h.AddBed)
	adminGroup.POST("/wards/:id/resources", h.AddResource)
}

func httpError(err error) error {
	return apperr.HTTP(err,
		apperr.Status{Err: ErrNotFound, Code: http.StatusNotFound},
		apperr.Status{Err: ErrBedNotFound, Code: http.StatusNotFound},
		apperr.Status{Err: ErrResourceNotFound, Code: http.StatusNotFound},
		apperr.Status{Err: ErrAssignmentNotFound, Code: http.StatusNotFound},
		apperr.Status{Err: patient.ErrNotFound, Code: http.StatusNotFound},
		apperr.Status{Err: ErrWardFull, Code: http.StatusConflict},
		apperr.Status{Err: ErrWardInactive, Code: http.StatusConflict},
		apperr.Status{Err: ErrBedNumberTaken, Code: http.StatusConflict},
		apperr.Status{Err: ErrBedOccupied, Code: http.StatusConflict},
		apperr.Status{Err: ErrAlreadyDischarged, Code: http.StatusConflict},
	)
}

func parseUUID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func parseID(c echo.Context) (uuid.UUID, error) { return parseUUID(c, "id") }

func (h *Handler) Create(c echo.Context) error {
	var w Ward
	if err := c.Bind(&w); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateWard(c.Request().Context(), &w); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, &w)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListWards(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Status(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	st, err := h.svc.WardStatus(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) AddBed(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var b Bed
	if err := c.Bind(&b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.AddBed(c.Request().Context(), id, &b); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, &b)
}

func (h *Handler) SetBedStatus(c echo.Context) error {
	wardID, err := parseID(c)
	if err != nil {
		return err
	}
	bedID, err := parseUUID(c, "bed_id")
	if err != nil {
		return err
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.SetBedStatus(c.Request().Context(), wardID, bedID, body.Status)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) AddResource(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var r Resource
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.AddResource(c.Request().Context(), id, &r); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, &r)
}

func (h *Handler) UpdateResource(c echo.Context) error {
	wardID, err := parseID(c)
	if err != nil {
		return err
	}
	resourceID, err := parseUUID(c, "resource_id")
	if err != nil {
		return err
	}
	var u ResourceUpdate
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.UpdateResource(c.Request().Context(), wardID, resourceID, u)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) LowStock(c echo.Context) error {
	items, err := h.svc.LowStockResources(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items, "total": len(items)})
}

func (h *Handler) Assign(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req AssignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if by, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context())); err == nil {
		req.AssignedBy = &by
	}
	a, bed, err := h.svc.AssignPatient(c.Request().Context(), id, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"assignment": a, "bed": bed})
}

func (h *Handler) Discharge(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Discharge(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ActiveAssignments(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ActiveAssignments(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items, "total": len(items)})
}
