package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/cache"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/telemetry"
)

// SchedulerConfig carries the optional collaborators of a Scheduler.
type SchedulerConfig struct {
	// Location is the facility zone availability windows are expressed in.
	Location *time.Location
	// AlignToWindow starts the slot grid at the window start instead of the
	// window's whole hour.
	AlignToWindow bool
	Cache         cache.Store
	CacheTTL      time.Duration
	Metrics       *telemetry.Metrics
	Logger        zerolog.Logger
}

// Scheduler answers availability questions from weekly windows and existing
// bookings. It only reads.
type Scheduler struct {
	doctors  DoctorDirectory
	bookings BookingReader

	loc      *time.Location
	align    bool
	cache    cache.Store
	cacheTTL time.Duration
	metrics  *telemetry.Metrics
	logger   zerolog.Logger
}

func NewScheduler(doctors DoctorDirectory, bookings BookingReader, cfg SchedulerConfig) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.Noop{}
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	return &Scheduler{
		doctors:  doctors,
		bookings: bookings,
		loc:      cfg.Location,
		align:    cfg.AlignToWindow,
		cache:    cfg.Cache,
		cacheTTL: cfg.CacheTTL,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
}

// Location is the facility time zone.
func (s *Scheduler) Location() *time.Location { return s.loc }

func generationKey(doctorID uuid.UUID) string {
	return "schedule-gen:" + doctorID.String()
}

// InvalidateDoctor drops every cached schedule of doctorID.
func (s *Scheduler) InvalidateDoctor(ctx context.Context, doctorID uuid.UUID) {
	if err := s.cache.Bump(ctx, generationKey(doctorID)); err != nil {
		s.logger.Warn().Err(err).Str("doctor_id", doctorID.String()).Msg("schedule cache invalidation failed")
	}
}
