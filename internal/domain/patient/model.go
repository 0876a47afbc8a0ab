package patient

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("patient not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrEmailTaken      = errors.New("a patient with this email already exists")
)

var validGenders = map[string]bool{"male": true, "female": true, "other": true}

var validBloodTypes = map[string]bool{
	"A+": true, "A-": true, "B+": true, "B-": true,
	"AB+": true, "AB-": true, "O+": true, "O-": true,
}

type EmergencyContact struct {
	Name           string `json:"name" bson:"name"`
	Relationship   string `json:"relationship" bson:"relationship"`
	Phone          string `json:"phone" bson:"phone"`
	SecondaryPhone string `json:"secondary_phone,omitempty" bson:"secondary_phone,omitempty"`
	Address        string `json:"address,omitempty" bson:"address,omitempty"`
}

type Patient struct {
	ID                 uuid.UUID         `json:"id" bson:"_id"`
	FirstName          string            `json:"first_name" bson:"first_name"`
	LastName           string            `json:"last_name" bson:"last_name"`
	Email              string            `json:"email,omitempty" bson:"email,omitempty"`
	ContactNumber      string            `json:"contact_number" bson:"contact_number"`
	DateOfBirth        *time.Time        `json:"date_of_birth,omitempty" bson:"date_of_birth,omitempty"`
	Gender             string            `json:"gender" bson:"gender"`
	Address            string            `json:"address" bson:"address"`
	BloodType          string            `json:"blood_type,omitempty" bson:"blood_type,omitempty"`
	Allergies          []string          `json:"allergies" bson:"allergies"`
	MedicalHistory     []string          `json:"medical_history" bson:"medical_history"`
	ChronicConditions  []string          `json:"chronic_conditions" bson:"chronic_conditions"`
	CurrentMedications []string          `json:"current_medications" bson:"current_medications"`
	PreferredLanguage  string            `json:"preferred_language" bson:"preferred_language"`
	EmergencyContact   *EmergencyContact `json:"emergency_contact,omitempty" bson:"emergency_contact,omitempty"`
	LastEmergencyVisit *time.Time        `json:"last_emergency_visit,omitempty" bson:"last_emergency_visit,omitempty"`
	CreatedAt          time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at" bson:"updated_at"`
}

func (p *Patient) FullName() string { return p.FirstName + " " + p.LastName }

// SearchQuery matches patients whose fields contain every non-empty value,
// case-insensitively. Q matches any of the name, email or phone fields.
type SearchQuery struct {
	Q             string
	FirstName     string
	LastName      string
	Email         string
	ContactNumber string
}

func (q SearchQuery) Empty() bool {
	return q.Q == "" && q.FirstName == "" && q.LastName == "" && q.Email == "" && q.ContactNumber == ""
}

// -- Emergency --

var validSeverities = map[string]bool{
	"critical": true, "severe": true, "moderate": true, "mild": true,
}

type VitalSigns struct {
	BloodPressure    string  `json:"blood_pressure" bson:"blood_pressure"`
	HeartRate        int     `json:"heart_rate" bson:"heart_rate"`
	Temperature      float64 `json:"temperature" bson:"temperature"`
	OxygenSaturation float64 `json:"oxygen_saturation" bson:"oxygen_saturation"`
}

type EmergencyVisit struct {
	ID               uuid.UUID   `json:"id" bson:"_id"`
	PatientID        uuid.UUID   `json:"patient_id" bson:"patient_id"`
	Severity         string      `json:"severity" bson:"severity"`
	Description      string      `json:"description" bson:"description"`
	Location         string      `json:"location,omitempty" bson:"location,omitempty"`
	Symptoms         []string    `json:"symptoms" bson:"symptoms"`
	VitalSigns       *VitalSigns `json:"vital_signs,omitempty" bson:"vital_signs,omitempty"`
	AttendingStaffID *uuid.UUID  `json:"attending_staff_id,omitempty" bson:"attending_staff_id,omitempty"`
	Outcome          string      `json:"outcome,omitempty" bson:"outcome,omitempty"`
	CreatedAt        time.Time   `json:"created_at" bson:"created_at"`
}

// EmergencyInfo is the summary emergency staff read before treating a
// patient.
type EmergencyInfo struct {
	PatientID          uuid.UUID         `json:"patient_id"`
	FirstName          string            `json:"first_name"`
	LastName           string            `json:"last_name"`
	DateOfBirth        *time.Time        `json:"date_of_birth,omitempty"`
	BloodType          string            `json:"blood_type,omitempty"`
	Allergies          []string          `json:"allergies"`
	ChronicConditions  []string          `json:"chronic_conditions"`
	CurrentMedications []string          `json:"current_medications"`
	EmergencyContact   *EmergencyContact `json:"emergency_contact,omitempty"`
	LastVisit          *EmergencyVisit   `json:"last_emergency_visit,omitempty"`
}

// -- Messages --

// Message statuses are sent, delivered, read and archived.
type Message struct {
	ID          uuid.UUID  `json:"id" bson:"_id"`
	PatientID   uuid.UUID  `json:"patient_id" bson:"patient_id"`
	SenderID    uuid.UUID  `json:"sender_id" bson:"sender_id"`
	Subject     string     `json:"subject" bson:"subject"`
	Body        string     `json:"body" bson:"body"`
	Status      string     `json:"status" bson:"status"`
	Attachments []string   `json:"attachments,omitempty" bson:"attachments,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty" bson:"read_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" bson:"updated_at"`
}

// Unread reports whether the message still needs attention.
func (m *Message) Unread() bool {
	return m.Status != "read" && m.Status != "archived"
}
