package staff

import (
	"encoding/json"
	"errors"
	"io"
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
	// Public: the auth skipper lets these through without a token.
	api.POST("/auth/login", h.Login)
	api.POST("/auth/password-reset/request", h.RequestPasswordReset)
	api.POST("/auth/password-reset", h.ResetPassword)

	readGroup := api.Group("", auth.RequireRole(auth.Clinical...))
	readGroup.GET("/staff", h.List)
	readGroup.GET("/staff/doctors", h.ListDoctors)
	readGroup.GET("/staff/doctors/:id/availability", h.GetAvailability)
	readGroup.GET("/staff/emergency/available", h.AvailableEmergency)
	readGroup.GET("/staff/lab-technicians/available", h.AvailableLabTechnicians)
	readGroup.GET("/staff/:id", h.Get)

	adminGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	adminGroup.POST("/staff", h.Create)
	adminGroup.PUT("/staff/:id", h.Update)
	adminGroup.DELETE("/staff/:id", h.Delete)
	adminGroup.PUT("/staff/nurses/:id/shift", h.SetNurseShift)
	adminGroup.PUT("/staff/admins/:id/access", h.SetAdminAccess)

	api.PUT("/staff/doctors/:id/availability", h.SetAvailability, auth.RequireRole(auth.RoleDoctor))
	api.PUT("/staff/emergency/:id/shift", h.SetEmergencyShift, auth.RequireRole(auth.RoleEmergency))
	api.PUT("/staff/lab-technicians/:id/shift", h.SetLabTechnicianShift, auth.RequireRole(auth.RoleLabTechnician))
}

func httpError(err error) error {
	return apperr.HTTP(err,
		apperr.Status{Err: ErrNotFound, Code: http.StatusNotFound},
		apperr.Status{Err: ErrEmailTaken, Code: http.StatusConflict},
		apperr.Status{Err: ErrWrongRole, Code: http.StatusConflict},
		apperr.Status{Err: ErrInvalidLogin, Code: http.StatusUnauthorized},
	)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// requireSelf lets admins act on anyone and everyone else only on their own
// record.
func requireSelf(c echo.Context, id uuid.UUID) error {
	ctx := c.Request().Context()
	if hasAdmin(auth.RolesFromContext(ctx)) {
		return nil
	}
	if auth.UserIDFromContext(ctx) != id.String() {
		return echo.NewHTTPError(http.StatusForbidden, "can only modify your own record")
	}
	return nil
}

func hasAdmin(roles []string) bool {
	for _, r := range roles {
		if r == auth.RoleAdmin {
			return true
		}
	}
	return false
}

type createRequest struct {
	Password string `json:"password"`
}

func (h *Handler) Create(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var st Staff
	if err := json.Unmarshal(body, &st); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var req createRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Create(c.Request().Context(), &st, req.Password); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, &st)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	st, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{Role: Role(c.QueryParam("role")), Department: c.QueryParam("department")}
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
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
	var st Staff
	if err := c.Bind(&st); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	st.ID = id
	if err := h.svc.Update(c.Request().Context(), &st); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, &st)
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

func (h *Handler) ListDoctors(c echo.Context) error {
	items, err := h.svc.FindDoctors(c.Request().Context(), DoctorFilter{
		Department:     c.QueryParam("department"),
		Specialization: c.QueryParam("specialization"),
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items, "total": len(items)})
}

func (h *Handler) GetAvailability(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	windows, err := h.svc.GetAvailability(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"doctor_id": id, "availability": windows})
}

type availabilityRequest struct {
	Availability []Availability `json:"availability"`
}

func (h *Handler) SetAvailability(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := requireSelf(c, id); err != nil {
		return err
	}
	var req availabilityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	st, err := h.svc.SetAvailability(c.Request().Context(), id, req.Availability)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) SetNurseShift(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req struct {
		Shift string `json:"shift"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	st, err := h.svc.SetNurseShift(c.Request().Context(), id, req.Shift)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) SetAdminAccess(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req AccessUpdate
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	st, err := h.svc.SetAdminAccess(c.Request().Context(), id, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) AvailableEmergency(c echo.Context) error {
	items, err := h.svc.AvailableEmergencyStaff(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items, "total": len(items)})
}

func (h *Handler) AvailableLabTechnicians(c echo.Context) error {
	items, err := h.svc.AvailableLabTechnicians(c.Request().Context(), c.QueryParam("test_type"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items, "total": len(items)})
}

type shiftRequest struct {
	ActiveShift *bool `json:"active_shift"`
}

func (h *Handler) setShift(c echo.Context, role Role) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := requireSelf(c, id); err != nil {
		return err
	}
	var req shiftRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ActiveShift == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "active_shift is required")
	}
	st, err := h.svc.SetActiveShift(c.Request().Context(), id, role, *req.ActiveShift)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) SetEmergencyShift(c echo.Context) error {
	return h.setShift(c, RoleEmergency)
}

func (h *Handler) SetLabTechnicianShift(c echo.Context) error {
	return h.setShift(c, RoleLabTechnician)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}
	sess, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) RequestPasswordReset(c echo.Context) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	token, err := h.svc.RequestPasswordReset(c.Request().Context(), req.Email)
	if err != nil {
		return httpError(err)
	}
	resp := map[string]interface{}{"message": "if the email is registered, a reset token has been issued"}
	if token != "" {
		resp["reset_token"] = token
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) ResetPassword(c echo.Context) error {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.ResetPassword(c.Request().Context(), req.Token, req.Password); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid or expired reset token")
		}
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "password updated"})
}
