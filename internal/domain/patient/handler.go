package patient

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

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
	readGroup.GET("/patients", h.List)
	readGroup.GET("/patients/search", h.Search)
	readGroup.GET("/patients/:id", h.Get)
	readGroup.GET("/patients/:id/emergency-info", h.EmergencyInfo)
	readGroup.GET("/patients/:id/messages", h.Messages)
	readGroup.GET("/patients/:id/messages/unread", h.UnreadMessages)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse, auth.RoleEmergency))
	writeGroup.POST("/patients", h.Create)
	writeGroup.PUT("/patients/:id", h.Update)
	writeGroup.PUT("/patients/:id/emergency-contact", h.UpdateEmergencyContact)
	writeGroup.POST("/patients/:id/emergency-visit", h.RecordEmergencyVisit)
	writeGroup.POST("/patients/:id/messages", h.SendMessage)
	writeGroup.PUT("/messages/:id/read", h.MarkMessageRead)

	api.DELETE("/patients/:id", h.Delete, auth.RequireRole(auth.RoleAdmin))
}

func httpError(err error) error {
	return apperr.HTTP(err,
		apperr.Status{Err: ErrNotFound, Code: http.StatusNotFound},
		apperr.Status{Err: ErrMessageNotFound, Code: http.StatusNotFound},
		apperr.Status{Err: ErrEmailTaken, Code: http.StatusConflict},
	)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// caller returns the authenticated staff id, or uuid.Nil when the identity
// is not a staff uuid.
func caller(c echo.Context) uuid.UUID {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil
	}
	return id
}

func (h *Handler) Create(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Create(c.Request().Context(), &p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, &p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Search(c echo.Context) error {
	pg := pagination.FromContext(c)
	q := SearchQuery{
		Q:             c.QueryParam("q"),
		FirstName:     c.QueryParam("first_name"),
		LastName:      c.QueryParam("last_name"),
		Email:         c.QueryParam("email"),
		ContactNumber: c.QueryParam("contact_number"),
	}
	items, total, err := h.svc.Search(c.Request().Context(), q, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ID = id
	if err := h.svc.Update(c.Request().Context(), &p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, &p)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) EmergencyInfo(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	info, err := h.svc.EmergencyInfo(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, info)
}

func (h *Handler) UpdateEmergencyContact(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var contact EmergencyContact
	if err := c.Bind(&contact); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdateEmergencyContact(c.Request().Context(), id, &contact)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) RecordEmergencyVisit(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var v EmergencyVisit
	if err := c.Bind(&v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v.PatientID = id
	if v.AttendingStaffID == nil {
		if staffID := caller(c); staffID != uuid.Nil {
			v.AttendingStaffID = &staffID
		}
	}
	if err := h.svc.RecordEmergencyVisit(c.Request().Context(), &v); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, &v)
}

func (h *Handler) SendMessage(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var m Message
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m.PatientID = id
	if m.SenderID == uuid.Nil {
		m.SenderID = caller(c)
	}
	if err := h.svc.SendMessage(c.Request().Context(), &m); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, &m)
}

func (h *Handler) messages(c echo.Context, unreadOnly bool) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Messages(c.Request().Context(), id, unreadOnly)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items, "total": len(items)})
}

func (h *Handler) Messages(c echo.Context) error { return h.messages(c, false) }

func (h *Handler) UnreadMessages(c echo.Context) error { return h.messages(c, true) }

func (h *Handler) MarkMessageRead(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	m, err := h.svc.MarkMessageRead(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m)
}
