package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/emberlabs/ember/backend/internal/habits"
	"github.com/emberlabs/ember/backend/internal/notify"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tickInterval = time.Minute

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingNotifier = errors.New("notifier is required")
)

// Notifier delivers one typed event to a user's live connection.
type Notifier interface {
	Notify(userID, eventType string, payload interface{}) bool
}

// Config describes the dependencies of the reminder scheduler.
type Config struct {
	Database *gorm.DB
	Notifier Notifier
	Logger   *zap.Logger
	Clock    func() time.Time
}

// Scheduler evaluates every reminder-enabled habit once per minute against
// its owner's local time and pushes habit_reminder events for matches. It
// keeps no state between ticks; dedup falls out of the minute-granularity
// time match.
type Scheduler struct {
	db       *gorm.DB
	notifier Notifier
	logger   *zap.Logger
	clock    func() time.Time
	running  atomic.Bool
}

// New constructs the scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Notifier == nil {
		return nil, errMissingNotifier
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		db:       cfg.Database,
		notifier: cfg.Notifier,
		logger:   logger,
		clock:    clock,
	}, nil
}

// Run ticks once per wall-clock minute until the context is cancelled. The
// first tick is aligned to the next minute boundary. A tick still in flight
// when the next one is due causes the next one to be skipped, not queued.
func (s *Scheduler) Run(ctx context.Context) {
	now := s.clock()
	firstTick := now.Truncate(tickInterval).Add(tickInterval)
	select {
	case <-ctx.Done():
		return
	case <-time.After(firstTick.Sub(now)):
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	s.tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous scheduler tick still running, skipping")
		return
	}
	defer s.running.Store(false)
	s.RunOnce(s.clock())
}

// reminderRow is the joined habit/owner projection a tick evaluates.
type reminderRow struct {
	HabitID       string
	UserID        string
	Name          string
	Icon          string
	FrequencyType habits.FrequencyType
	FrequencyDays habits.WeekdaySet
	ReminderTime  string
	Timezone      string
}

// RunOnce performs a single evaluation pass for the provided instant. A
// storage failure abandons the pass; it never affects later ticks.
func (s *Scheduler) RunOnce(now time.Time) {
	var rows []reminderRow
	err := s.db.Table("habits").
		Select("habits.habit_id, habits.user_id, habits.name, habits.icon, habits.frequency_type, habits.frequency_days, habits.reminder_time, users.timezone").
		Joins("JOIN users ON users.user_id = habits.user_id").
		Where("habits.reminder_enabled = ? AND habits.reminder_time <> ''", true).
		Find(&rows).Error
	if err != nil {
		s.logger.Error("reminder query failed, abandoning tick", zap.Error(err))
		return
	}

	due := 0
	delivered := 0
	for _, row := range rows {
		isDue, err := habitDue(row, now)
		if err != nil {
			s.logger.Warn("skipping habit with unresolvable timezone",
				zap.String("habit_id", row.HabitID),
				zap.String("timezone", row.Timezone),
				zap.Error(err))
			continue
		}
		if !isDue {
			continue
		}
		due++
		payload := notify.ReminderPayload{
			Title: "Habit Reminder",
			Body:  fmt.Sprintf("Time for your habit: %q", row.Name),
			Icon:  row.Icon,
		}
		if s.notifier.Notify(row.UserID, notify.EventHabitReminder, payload) {
			delivered++
		}
	}

	if due > 0 {
		s.logger.Info("reminder tick complete",
			zap.Int("due", due),
			zap.Int("delivered", delivered))
	}
}

// habitDue reports whether the habit's reminder matches the instant in the
// owner's timezone: same HH:MM and a frequency-rule weekday match. The zone
// is resolved at evaluation time, never cached.
func habitDue(row reminderRow, now time.Time) (bool, error) {
	location, err := time.LoadLocation(row.Timezone)
	if err != nil {
		return false, err
	}
	local := now.In(location)
	if local.Format("15:04") != row.ReminderTime {
		return false, nil
	}
	switch row.FrequencyType {
	case habits.FrequencyDaily:
		return true, nil
	case habits.FrequencySpecificDays:
		return row.FrequencyDays.Contains(habits.ISOWeekday(local)), nil
	default:
		return false, nil
	}
}
