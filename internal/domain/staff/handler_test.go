package staff

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/auth"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _ := newTestService()
	return NewHandler(svc), echo.New()
}

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func asUser(req *http.Request, id string, roles ...string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), id, roles))
}

func expectCode(t *testing.T, err error, code int) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError with %d, got %v", code, err)
	}
	if he.Code != code {
		t.Errorf("expected %d, got %d (%v)", code, he.Code, he.Message)
	}
}

const doctorBody = `{"first_name":"Meredith","last_name":"Grey","email":"grey@example.com","password":"password1",
	"department":"surgery","role":"doctor","details":{"specialization":"general_surgery","license_number":"GS-1",
	"availability":[{"day":"monday","start_time":"09:00","end_time":"17:00"}]}}`

func TestHandler_Create(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, doctorBody), rec)

	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("response must not contain password material")
	}
	var got Staff
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := got.Doctor(); !ok {
		t.Error("expected doctor payload in response")
	}
}

func TestHandler_Create_BadRequest(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"role":"doctor","email":"x@example.com"}`), httptest.NewRecorder())
	expectCode(t, h.Create(c), http.StatusBadRequest)
}

func TestHandler_Create_Conflict(t *testing.T) {
	h, e := newTestHandler()
	if err := h.Create(e.NewContext(jsonRequest(http.MethodPost, doctorBody), httptest.NewRecorder())); err != nil {
		t.Fatal(err)
	}
	err := h.Create(e.NewContext(jsonRequest(http.MethodPost, doctorBody), httptest.NewRecorder()))
	expectCode(t, err, http.StatusConflict)
}

func TestHandler_Get_NotFound(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	expectCode(t, h.Get(c), http.StatusNotFound)
}

func TestHandler_Get_InvalidID(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	expectCode(t, h.Get(c), http.StatusBadRequest)
}

func TestHandler_List(t *testing.T) {
	h, e := newTestHandler()
	_ = h.svc.Create(context.Background(), newDoctor("a@example.com"), "password1")

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?role=doctor", nil), rec)
	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Errorf("expected one result, got %s", rec.Body.String())
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/?role=wizard", nil), httptest.NewRecorder())
	expectCode(t, h.List(c), http.StatusBadRequest)
}

func TestHandler_SetAvailability_SelfOnly(t *testing.T) {
	h, e := newTestHandler()
	doc := newDoctor("d@example.com")
	_ = h.svc.Create(context.Background(), doc, "password1")
	body := `{"availability":[{"day":"friday","start_time":"10:00","end_time":"14:00"}]}`

	other := asUser(jsonRequest(http.MethodPut, body), uuid.NewString(), auth.RoleDoctor)
	c := e.NewContext(other, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(doc.ID.String())
	expectCode(t, h.SetAvailability(c), http.StatusForbidden)

	self := asUser(jsonRequest(http.MethodPut, body), doc.ID.String(), auth.RoleDoctor)
	rec := httptest.NewRecorder()
	c = e.NewContext(self, rec)
	c.SetParamNames("id")
	c.SetParamValues(doc.ID.String())
	if err := h.SetAvailability(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"friday"`) {
		t.Errorf("expected updated availability, got %s", rec.Body.String())
	}
}

func TestHandler_SetAvailability_AdminInvalid(t *testing.T) {
	h, e := newTestHandler()
	doc := newDoctor("d@example.com")
	_ = h.svc.Create(context.Background(), doc, "password1")
	body := `{"availability":[{"day":"friday","start_time":"14:00","end_time":"10:00"}]}`

	req := asUser(jsonRequest(http.MethodPut, body), "admin-1", auth.RoleAdmin)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(doc.ID.String())
	expectCode(t, h.SetAvailability(c), http.StatusBadRequest)
}

func TestHandler_SetLabTechnicianShift_RequiresFlag(t *testing.T) {
	h, e := newTestHandler()
	req := asUser(jsonRequest(http.MethodPut, `{}`), "admin-1", auth.RoleAdmin)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())
	expectCode(t, h.SetLabTechnicianShift(c), http.StatusBadRequest)
}

func TestHandler_Login(t *testing.T) {
	h, e := newTestHandler()
	_ = h.svc.Create(context.Background(), newDoctor("l@example.com"), "password1")

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"email":"l@example.com","password":"password1"}`), rec)
	if err := h.Login(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sess Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatal(err)
	}
	if sess.Token == "" {
		t.Error("expected token")
	}

	c = e.NewContext(jsonRequest(http.MethodPost, `{"email":"l@example.com","password":"nope-nope"}`), httptest.NewRecorder())
	expectCode(t, h.Login(c), http.StatusUnauthorized)
}

func TestHandler_PasswordResetFlow(t *testing.T) {
	h, e := newTestHandler()
	_ = h.svc.Create(context.Background(), newDoctor("r@example.com"), "password1")

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"email":"r@example.com"}`), rec)
	if err := h.RequestPasswordReset(c); err != nil {
		t.Fatal(err)
	}
	var resp struct {
		ResetToken string `json:"reset_token"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.ResetToken == "" {
		t.Fatal("expected reset token")
	}

	body := `{"token":"` + resp.ResetToken + `","password":"brand-new-pass"}`
	rec = httptest.NewRecorder()
	if err := h.ResetPassword(e.NewContext(jsonRequest(http.MethodPost, body), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	if err := h.RequestPasswordReset(e.NewContext(jsonRequest(http.MethodPost, `{"email":"ghost@example.com"}`), rec)); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(rec.Body.String(), "reset_token") {
		t.Error("unknown email must not receive a token")
	}
}
