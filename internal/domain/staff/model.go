package staff

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/apperr"
	"github.com/k0t0k0t0/hospital-management-system-be/pkg/timerange"
)

var (
	ErrNotFound     = errors.New("staff member not found")
	ErrEmailTaken   = errors.New("email already registered")
	ErrWrongRole    = errors.New("staff member has a different role")
	ErrInvalidLogin = errors.New("invalid email or password")
)

type Role string

const (
	RoleDoctor        Role = "doctor"
	RoleNurse         Role = "nurse"
	RoleAdmin         Role = "admin"
	RoleEmergency     Role = "emergency"
	RoleLabTechnician Role = "lab_technician"
)

var validRoles = map[Role]bool{
	RoleDoctor: true, RoleNurse: true, RoleAdmin: true,
	RoleEmergency: true, RoleLabTechnician: true,
}

// Staff is the common record shared by every role. Details holds exactly one
// role payload whose Role() matches Role.
type Staff struct {
	ID            uuid.UUID  `json:"id"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Email         string     `json:"email"`
	ContactNumber string     `json:"contact_number,omitempty"`
	DateOfBirth   *time.Time `json:"date_of_birth,omitempty"`
	Gender        string     `json:"gender,omitempty"`
	Address       string     `json:"address,omitempty"`
	EmployeeID    string     `json:"employee_id,omitempty"`
	Department    string     `json:"department,omitempty"`
	Role          Role       `json:"role"`
	Details       Details    `json:"details"`
	PasswordHash  string     `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Details is the closed set of role payloads.
type Details interface {
	Role() Role
}

type DoctorDetails struct {
	Specialization string         `json:"specialization" bson:"specialization"`
	LicenseNumber  string         `json:"license_number" bson:"license_number"`
	Availability   []Availability `json:"availability" bson:"availability"`
}

type NurseDetails struct {
	Shift               string `json:"shift" bson:"shift"`
	CertificationNumber string `json:"certification_number" bson:"certification_number"`
}

type AdminDetails struct {
	Position           string   `json:"position" bson:"position"`
	AccessLevel        string   `json:"access_level" bson:"access_level"`
	Responsibilities   []string `json:"responsibilities" bson:"responsibilities"`
	ManagedDepartments []string `json:"managed_departments,omitempty" bson:"managed_departments,omitempty"`
}

type EmergencyDetails struct {
	EmergencyRole         string     `json:"emergency_role" bson:"emergency_role"`
	SpecializedTraining   []string   `json:"specialized_training" bson:"specialized_training"`
	Certifications        []string   `json:"certifications" bson:"certifications"`
	TriageAccess          []string   `json:"triage_access" bson:"triage_access"`
	ActiveShift           bool       `json:"active_shift" bson:"active_shift"`
	LastEmergencyResponse *time.Time `json:"last_emergency_response,omitempty" bson:"last_emergency_response,omitempty"`
	ResponseTeamID        string     `json:"response_team_id,omitempty" bson:"response_team_id,omitempty"`
}

type LabTechnicianDetails struct {
	Specializations         []string `json:"specializations" bson:"specializations"`
	Certifications          []string `json:"certifications" bson:"certifications"`
	LabID                   string   `json:"lab_id" bson:"lab_id"`
	ActiveShift             bool     `json:"active_shift" bson:"active_shift"`
	EquipmentQualifications []string `json:"equipment_qualifications" bson:"equipment_qualifications"`
}

func (*DoctorDetails) Role() Role        { return RoleDoctor }
func (*NurseDetails) Role() Role         { return RoleNurse }
func (*AdminDetails) Role() Role         { return RoleAdmin }
func (*EmergencyDetails) Role() Role     { return RoleEmergency }
func (*LabTechnicianDetails) Role() Role { return RoleLabTechnician }

// NewDetails returns an empty payload for role.
func NewDetails(role Role) (Details, error) {
	switch role {
	case RoleDoctor:
		return &DoctorDetails{}, nil
	case RoleNurse:
		return &NurseDetails{}, nil
	case RoleAdmin:
		return &AdminDetails{}, nil
	case RoleEmergency:
		return &EmergencyDetails{}, nil
	case RoleLabTechnician:
		return &LabTechnicianDetails{}, nil
	}
	return nil, apperr.Invalid("invalid role: %q", role)
}

// DecodeDetails unmarshals a JSON role payload into the type selected by role.
func DecodeDetails(role Role, raw []byte) (Details, error) {
	d, err := NewDetails(role)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return d, nil
	}
	if err := json.Unmarshal(raw, d); err != nil {
		return nil, fmt.Errorf("decode %s details: %w", role, err)
	}
	return d, nil
}

func (s *Staff) UnmarshalJSON(data []byte) error {
	type plain Staff
	aux := struct {
		*plain
		Details json.RawMessage `json:"details"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if s.Role == "" {
		s.Details = nil
		return nil
	}
	d, err := DecodeDetails(s.Role, aux.Details)
	if err != nil {
		return err
	}
	s.Details = d
	return nil
}

// Doctor returns the doctor payload when s is a doctor.
func (s *Staff) Doctor() (*DoctorDetails, bool) {
	if s == nil || s.Role != RoleDoctor {
		return nil, false
	}
	d, ok := s.Details.(*DoctorDetails)
	return d, ok
}

func (s *Staff) FullName() string {
	return s.FirstName + " " + s.LastName
}

// Availability is one recurring weekly working window in facility-local
// wall-clock time.
type Availability struct {
	Day       timerange.Weekday `json:"day" bson:"day"`
	StartTime string            `json:"start_time" bson:"start_time"`
	EndTime   string            `json:"end_time" bson:"end_time"`
}

// Minutes returns the window bounds as minutes since midnight.
func (a Availability) Minutes() (start, end int, err error) {
	if start, err = timerange.ToMinutes(a.StartTime); err != nil {
		return 0, 0, err
	}
	if end, err = timerange.ToMinutes(a.EndTime); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// WindowFor returns the window for day. There is at most one per weekday.
func (d *DoctorDetails) WindowFor(day timerange.Weekday) (Availability, bool) {
	for _, a := range d.Availability {
		if a.Day == day {
			return a, true
		}
	}
	return Availability{}, false
}

// ValidateAvailability rejects unknown days, malformed or inverted windows and
// duplicate weekdays.
func ValidateAvailability(windows []Availability) error {
	seen := make(map[timerange.Weekday]bool, len(windows))
	for i := range windows {
		day, ok := timerange.ParseWeekday(string(windows[i].Day))
		if !ok {
			return apperr.Invalid("availability[%d]: invalid day %q", i, windows[i].Day)
		}
		windows[i].Day = day
		if seen[day] {
			return apperr.Invalid("availability[%d]: more than one window for %s", i, day)
		}
		seen[day] = true

		start, end, err := windows[i].Minutes()
		if err != nil {
			return apperr.Invalid("availability[%d]: %v", i, err)
		}
		if start >= end {
			return apperr.Invalid("availability[%d]: start_time must be before end_time", i)
		}
	}
	return nil
}

// Filter narrows staff listings. Empty fields match everything.
type Filter struct {
	Role           Role
	Department     string
	Specialization string
	// TestType matches lab technicians qualified for a lab test type.
	TestType string
	// OnShift restricts emergency staff and lab technicians to those on an
	// active shift.
	OnShift bool
}

// DoctorFilter is the optional department/specialization search used by the
// available-doctor finder.
type DoctorFilter struct {
	Department     string
	Specialization string
}

func (f DoctorFilter) Filter() Filter {
	return Filter{Role: RoleDoctor, Department: f.Department, Specialization: f.Specialization}
}

var validShifts = map[string]bool{"morning": true, "afternoon": true, "night": true}

var validAccessLevels = map[string]bool{"basic": true, "intermediate": true, "full": true}

var validPositions = map[string]bool{
	"hospital_manager": true, "resource_coordinator": true, "system_administrator": true,
	"finance_manager": true, "hr_manager": true,
}

var validEmergencyRoles = map[string]bool{
	"emergency_physician": true, "trauma_surgeon": true, "emergency_nurse": true,
	"paramedic": true, "triage_coordinator": true,
}

var validTriageLevels = map[string]bool{
	"level1_resuscitation": true, "level2_emergent": true, "level3_urgent": true,
	"level4_less_urgent": true, "level5_non_urgent": true,
}

// LabTestTypes are the test types a lab technician can specialise in.
var LabTestTypes = map[string]bool{
	"blood_work": true, "urinalysis": true, "imaging": true, "biopsy": true,
	"microbiology": true, "genetic_testing": true, "toxicology": true,
}

// validateDetails dispatches on the payload type.
func validateDetails(d Details) error {
	switch v := d.(type) {
	case *DoctorDetails:
		if v.Specialization == "" {
			return apperr.Invalid("specialization is required")
		}
		if v.LicenseNumber == "" {
			return apperr.Invalid("license_number is required")
		}
		return ValidateAvailability(v.Availability)
	case *NurseDetails:
		if !validShifts[v.Shift] {
			return apperr.Invalid("invalid shift: %q", v.Shift)
		}
	case *AdminDetails:
		if !validPositions[v.Position] {
			return apperr.Invalid("invalid position: %q", v.Position)
		}
		if !validAccessLevels[v.AccessLevel] {
			return apperr.Invalid("invalid access_level: %q", v.AccessLevel)
		}
	case *EmergencyDetails:
		if !validEmergencyRoles[v.EmergencyRole] {
			return apperr.Invalid("invalid emergency_role: %q", v.EmergencyRole)
		}
		for _, lvl := range v.TriageAccess {
			if !validTriageLevels[lvl] {
				return apperr.Invalid("invalid triage level: %q", lvl)
			}
		}
	case *LabTechnicianDetails:
		for _, t := range v.Specializations {
			if !LabTestTypes[t] {
				return apperr.Invalid("invalid lab test type: %q", t)
			}
		}
	case nil:
		return apperr.Invalid("details are required")
	}
	return nil
}
