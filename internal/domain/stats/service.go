package stats

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/k0t0k0t0/hospital-management-system-be/internal/domain/staff"
)

type PatientCounter interface {
	Count(ctx context.Context) (int, error)
}

type StaffCounter interface {
	CountByRole(ctx context.Context) (map[staff.Role]int, error)
}

type WardCounter interface {
	CountWards(ctx context.Context) (int, error)
}

type AppointmentCounter interface {
	CountUpcoming(ctx context.Context) (int, error)
}

// Stats is the hospital-wide dashboard summary.
type Stats struct {
	TotalPatients        int `json:"total_patients"`
	TotalDoctors         int `json:"total_doctors"`
	TotalNurses          int `json:"total_nurses"`
	TotalAdmins          int `json:"total_admins"`
	TotalEmergencyTeam   int `json:"total_emergency_team"`
	TotalLabTechnicians  int `json:"total_lab_technicians"`
	TotalWards           int `json:"total_wards"`
	UpcomingAppointments int `json:"upcoming_appointments"`
}

type Service struct {
	patients     PatientCounter
	staff        StaffCounter
	wards        WardCounter
	appointments AppointmentCounter
	logger       zerolog.Logger
}

func NewService(patients PatientCounter, st StaffCounter, wards WardCounter, appointments AppointmentCounter, logger zerolog.Logger) *Service {
	return &Service{patients: patients, staff: st, wards: wards, appointments: appointments, logger: logger}
}

// Get runs the counts concurrently and fails if any of them fails.
func (s *Service) Get(ctx context.Context) (*Stats, error) {
	var out Stats
	var byRole map[staff.Role]int

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.TotalPatients, err = s.patients.Count(ctx)
		return wrap("patients", err)
	})
	g.Go(func() (err error) {
		byRole, err = s.staff.CountByRole(ctx)
		return wrap("staff", err)
	})
	g.Go(func() (err error) {
		out.TotalWards, err = s.wards.CountWards(ctx)
		return wrap("wards", err)
	})
	g.Go(func() (err error) {
		out.UpcomingAppointments, err = s.appointments.CountUpcoming(ctx)
		return wrap("appointments", err)
	})
	if err := g.Wait(); err != nil {
		s.logger.Error().Err(err).Msg("stats query failed")
		return nil, err
	}

	out.TotalDoctors = byRole[staff.RoleDoctor]
	out.TotalNurses = byRole[staff.RoleNurse]
	out.TotalAdmins = byRole[staff.RoleAdmin]
	out.TotalEmergencyTeam = byRole[staff.RoleEmergency]
	out.TotalLabTechnicians = byRole[staff.RoleLabTechnician]
	return &out, nil
}

func wrap(what string, err error) error {
	if err != nil {
		return fmt.Errorf("count %s: %w", what, err)
	}
	return nil
}
