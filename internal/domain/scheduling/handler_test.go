package scheduling

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newHandlerFixture() (*Handler, *serviceFixture, *echo.Echo) {
	f := newServiceFixture()
	return NewHandler(f.svc), f, echo.New()
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
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

func TestHandler_Schedule(t *testing.T) {
	h, f, e := newHandlerFixture()
	f.book(t, "10:00")

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?start_date=2024-01-15&end_date=2024-01-21", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(f.doctor.String())

	if err := h.Schedule(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var days []DoctorSchedule
	if err := json.Unmarshal(rec.Body.Bytes(), &days); err != nil {
		t.Fatal(err)
	}
	if len(days) != 2 {
		t.Fatalf("expected monday and tuesday, got %d days", len(days))
	}
	if days[0].TimeSlots[2].IsAvailable {
		t.Error("expected 10:00 slot to be booked")
	}
}

func TestHandler_Schedule_BadInput(t *testing.T) {
	h, f, e := newHandlerFixture()
	tests := []struct {
		name  string
		id    string
		query string
		code  int
	}{
		{"bad id", "nope", "?start_date=2024-01-15&end_date=2024-01-15", http.StatusBadRequest},
		{"missing end", f.doctor.String(), "?start_date=2024-01-15", http.StatusBadRequest},
		{"bad date", f.doctor.String(), "?start_date=15/01/2024&end_date=2024-01-15", http.StatusBadRequest},
		{"inverted", f.doctor.String(), "?start_date=2024-01-16&end_date=2024-01-15", http.StatusBadRequest},
		{"unknown doctor", uuid.NewString(), "?start_date=2024-01-15&end_date=2024-01-15", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/"+tt.query, nil), httptest.NewRecorder())
			c.SetParamNames("id")
			c.SetParamValues(tt.id)
			expectCode(t, h.Schedule(c), tt.code)
		})
	}
}

func TestHandler_CheckAvailability(t *testing.T) {
	h, f, e := newHandlerFixture()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?date_time=2024-01-15T10:00:00Z", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(f.doctor.String())
	if err := h.CheckAvailability(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Available bool `json:"available"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Available {
		t.Error("expected doctor to be available")
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(f.doctor.String())
	expectCode(t, h.CheckAvailability(c), http.StatusBadRequest)
}

func TestHandler_AvailableDoctors(t *testing.T) {
	h, _, e := newHandlerFixture()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?date=2024-01-15&start_time=10:00&end_time=11:00&department=cardiology", nil), rec)
	if err := h.AvailableDoctors(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 {
		t.Errorf("expected 1 doctor, got %d", resp.Total)
	}

	for _, q := range []string{
		"?date=2024-01-15&start_time=10:60&end_time=11:00",
		"?date=2024-01-15&start_time=11:00&end_time=10:00",
		"?start_time=10:00&end_time=11:00",
	} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/"+q, nil), httptest.NewRecorder())
		expectCode(t, h.AvailableDoctors(c), http.StatusBadRequest)
	}
}

func TestHandler_CreateAppointment(t *testing.T) {
	h, f, e := newHandlerFixture()
	body := `{"patient_id":"` + f.patient.String() + `","doctor_id":"` + f.doctor.String() + `","type":"consultation","date_time":"2024-01-15T10:00:00Z"}`

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/", body), rec)
	if err := h.CreateAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	c = e.NewContext(jsonRequest(http.MethodPost, "/", body), httptest.NewRecorder())
	expectCode(t, h.CreateAppointment(c), http.StatusConflict)

	late := strings.Replace(body, "10:00:00Z", "16:45:00Z", 1)
	c = e.NewContext(jsonRequest(http.MethodPost, "/", late), httptest.NewRecorder())
	expectCode(t, h.CreateAppointment(c), http.StatusBadRequest)

	stranger := strings.Replace(body, f.patient.String(), uuid.NewString(), 1)
	c = e.NewContext(jsonRequest(http.MethodPost, "/", strings.Replace(stranger, "10:00:00Z", "11:00:00Z", 1)), httptest.NewRecorder())
	expectCode(t, h.CreateAppointment(c), http.StatusNotFound)

	c = e.NewContext(jsonRequest(http.MethodPost, "/", `{"doctor_id":`), httptest.NewRecorder())
	expectCode(t, h.CreateAppointment(c), http.StatusBadRequest)
}

func TestHandler_UpdateAppointmentStatus(t *testing.T) {
	h, f, e := newHandlerFixture()
	a := f.book(t, "10:00")

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPut, "/", `{"status":"cancelled","cancel_reason":"sick"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.UpdateAppointmentStatus(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c = e.NewContext(jsonRequest(http.MethodPut, "/", `{"status":"confirmed"}`), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	expectCode(t, h.UpdateAppointmentStatus(c), http.StatusConflict)

	c = e.NewContext(jsonRequest(http.MethodPut, "/", `{"status":"confirmed"}`), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())
	expectCode(t, h.UpdateAppointmentStatus(c), http.StatusNotFound)
}

func TestHandler_DoctorAppointments(t *testing.T) {
	h, f, e := newHandlerFixture()
	f.book(t, "10:00")

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?from=2024-01-15&to=2024-01-15", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(f.doctor.String())
	if err := h.DoctorAppointments(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 {
		t.Errorf("expected 1 appointment, got %d", resp.Total)
	}
}
