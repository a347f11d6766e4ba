package habits

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()

	// ErrHabitNotFound indicates the habit does not exist.
	ErrHabitNotFound = errors.New("habits: habit not found")
	// ErrForbidden indicates the habit belongs to another user.
	ErrForbidden = errors.New("habits: habit owned by another user")
	// ErrLogNotFound indicates no completion log exists for the date.
	ErrLogNotFound = errors.New("habits: completion log not found")
)

// ServiceError wraps a failure with a dotted operation.reason code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew       = "habits.service.new"
	opCreateHabit      = "habits.create"
	opListHabits       = "habits.list"
	opGetHabit         = "habits.get"
	opUpdateHabit      = "habits.update"
	opDeleteHabit      = "habits.delete"
	opRecordCompletion = "habits.record_completion"
	opRemoveCompletion = "habits.remove_completion"
	opUpdateLogNote    = "habits.update_log_note"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider issues identifiers for new rows.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the habit service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service owns habit definitions, completion logs and their streak rows.
// It is the only writer of the streaks table.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the habit service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// HabitParams carries the writable fields of a habit definition.
type HabitParams struct {
	Name            string
	Description     string
	Color           string
	Icon            string
	FrequencyType   FrequencyType
	FrequencyDays   WeekdaySet
	ReminderEnabled bool
	ReminderTime    string
}

func (p HabitParams) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrInvalidName
	}
	switch p.FrequencyType {
	case FrequencyDaily:
	case FrequencySpecificDays:
		if len(p.FrequencyDays) == 0 {
			return fmt.Errorf("%w: specific_days requires a non-empty weekday set", ErrInvalidFrequency)
		}
	default:
		return fmt.Errorf("%w: unknown frequency type %q", ErrInvalidFrequency, p.FrequencyType)
	}
	if err := p.FrequencyDays.Validate(); err != nil {
		return err
	}
	if p.ReminderEnabled || p.ReminderTime != "" {
		if _, err := time.Parse("15:04", p.ReminderTime); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidReminderTime, p.ReminderTime)
		}
	}
	return nil
}

// HabitWithStreak pairs a habit with its streak counters and logged dates.
type HabitWithStreak struct {
	Habit    Habit
	Streak   Streak
	LogDates []string
}

// HabitDetail pairs a habit with its streak counters and the full log history.
type HabitDetail struct {
	Habit  Habit
	Streak Streak
	Logs   []CompletionLog
}

// Create persists a new habit together with its zeroed streak row.
func (s *Service) Create(ctx context.Context, userID string, params HabitParams) (Habit, error) {
	if err := params.validate(); err != nil {
		return Habit{}, err
	}
	habitID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateHabit, "id_generation_failed", err, zap.String("user_id", userID))
		return Habit{}, newServiceError(opCreateHabit, "id_generation_failed", err)
	}

	habit := Habit{
		HabitID:         habitID,
		UserID:          userID,
		Name:            strings.TrimSpace(params.Name),
		Description:     params.Description,
		Color:           params.Color,
		Icon:            params.Icon,
		FrequencyType:   params.FrequencyType,
		FrequencyDays:   params.FrequencyDays,
		ReminderEnabled: params.ReminderEnabled,
		ReminderTime:    params.ReminderTime,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&habit).Error; err != nil {
			return newServiceError(opCreateHabit, "habit_insert_failed", err)
		}
		if err := tx.Create(&Streak{HabitID: habitID}).Error; err != nil {
			return newServiceError(opCreateHabit, "streak_insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opCreateHabit, "transaction_failed", txErr, zap.String("user_id", userID))
		return Habit{}, txErr
	}
	return habit, nil
}

// List returns all habits for the user with streak counters and logged dates.
func (s *Service) List(ctx context.Context, userID string) ([]HabitWithStreak, error) {
	var stored []Habit
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&stored).Error; err != nil {
		s.logError(opListHabits, "query_failed", err, zap.String("user_id", userID))
		return nil, newServiceError(opListHabits, "query_failed", err)
	}
	if len(stored) == 0 {
		return nil, nil
	}

	habitIDs := make([]string, 0, len(stored))
	for _, habit := range stored {
		habitIDs = append(habitIDs, habit.HabitID)
	}

	var streaks []Streak
	if err := s.db.WithContext(ctx).
		Where("habit_id IN ?", habitIDs).
		Find(&streaks).Error; err != nil {
		s.logError(opListHabits, "streak_query_failed", err, zap.String("user_id", userID))
		return nil, newServiceError(opListHabits, "streak_query_failed", err)
	}
	streaksByHabit := make(map[string]Streak, len(streaks))
	for _, streak := range streaks {
		streaksByHabit[streak.HabitID] = streak
	}

	var logs []CompletionLog
	if err := s.db.WithContext(ctx).
		Where("habit_id IN ?", habitIDs).
		Order("log_date ASC").
		Find(&logs).Error; err != nil {
		s.logError(opListHabits, "log_query_failed", err, zap.String("user_id", userID))
		return nil, newServiceError(opListHabits, "log_query_failed", err)
	}
	datesByHabit := make(map[string][]string, len(stored))
	for _, log := range logs {
		datesByHabit[log.HabitID] = append(datesByHabit[log.HabitID], log.LogDate)
	}

	result := make([]HabitWithStreak, 0, len(stored))
	for _, habit := range stored {
		streak := streaksByHabit[habit.HabitID]
		streak.HabitID = habit.HabitID
		result = append(result, HabitWithStreak{
			Habit:    habit,
			Streak:   streak,
			LogDates: datesByHabit[habit.HabitID],
		})
	}
	return result, nil
}

// Get returns one habit with its streak counters and full log history,
// newest log first.
func (s *Service) Get(ctx context.Context, userID, habitID string) (HabitDetail, error) {
	habit, err := s.loadOwnedHabit(s.db.WithContext(ctx), userID, habitID)
	if err != nil {
		return HabitDetail{}, err
	}

	var streak Streak
	if err := s.db.WithContext(ctx).
		Where("habit_id = ?", habitID).
		Take(&streak).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(opGetHabit, "streak_query_failed", err, zap.String("habit_id", habitID))
		return HabitDetail{}, newServiceError(opGetHabit, "streak_query_failed", err)
	}
	streak.HabitID = habitID

	var logs []CompletionLog
	if err := s.db.WithContext(ctx).
		Where("habit_id = ?", habitID).
		Order("log_date DESC").
		Find(&logs).Error; err != nil {
		s.logError(opGetHabit, "log_query_failed", err, zap.String("habit_id", habitID))
		return HabitDetail{}, newServiceError(opGetHabit, "log_query_failed", err)
	}

	return HabitDetail{Habit: habit, Streak: streak, Logs: logs}, nil
}

// Update rewrites the writable fields of an owned habit.
func (s *Service) Update(ctx context.Context, userID, habitID string, params HabitParams) (Habit, error) {
	if err := params.validate(); err != nil {
		return Habit{}, err
	}

	var updated Habit
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		habit, err := s.loadOwnedHabit(tx, userID, habitID)
		if err != nil {
			return err
		}
		habit.Name = strings.TrimSpace(params.Name)
		habit.Description = params.Description
		habit.Color = params.Color
		habit.Icon = params.Icon
		habit.FrequencyType = params.FrequencyType
		habit.FrequencyDays = params.FrequencyDays
		habit.ReminderEnabled = params.ReminderEnabled
		habit.ReminderTime = params.ReminderTime
		if err := tx.Save(&habit).Error; err != nil {
			return newServiceError(opUpdateHabit, "habit_save_failed", err)
		}
		updated = habit
		return nil
	})
	if txErr != nil {
		if !errors.Is(txErr, ErrHabitNotFound) && !errors.Is(txErr, ErrForbidden) {
			s.logError(opUpdateHabit, "transaction_failed", txErr, zap.String("habit_id", habitID))
		}
		return Habit{}, txErr
	}
	return updated, nil
}

// Delete removes an owned habit together with its logs and streak row.
func (s *Service) Delete(ctx context.Context, userID, habitID string) error {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadOwnedHabit(tx, userID, habitID); err != nil {
			return err
		}
		if err := tx.Where("habit_id = ?", habitID).Delete(&CompletionLog{}).Error; err != nil {
			return newServiceError(opDeleteHabit, "log_delete_failed", err)
		}
		if err := tx.Where("habit_id = ?", habitID).Delete(&Streak{}).Error; err != nil {
			return newServiceError(opDeleteHabit, "streak_delete_failed", err)
		}
		if err := tx.Where("habit_id = ?", habitID).Delete(&Habit{}).Error; err != nil {
			return newServiceError(opDeleteHabit, "habit_delete_failed", err)
		}
		return nil
	})
	if txErr != nil {
		if !errors.Is(txErr, ErrHabitNotFound) && !errors.Is(txErr, ErrForbidden) {
			s.logError(opDeleteHabit, "transaction_failed", txErr, zap.String("habit_id", habitID))
		}
		return txErr
	}
	return nil
}

// RecordCompletion inserts a completion log for (habit, date) and advances the
// streak counters. A duplicate date is reported as alreadyLogged with the
// existing log and no streak mutation. The log insert and the streak update
// commit or roll back together.
func (s *Service) RecordCompletion(ctx context.Context, userID, habitID, date, note string) (log CompletionLog, alreadyLogged bool, err error) {
	parsedDate, err := ParseDate(date)
	if err != nil {
		return CompletionLog{}, false, err
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadOwnedHabit(tx, userID, habitID); err != nil {
			return err
		}

		streak, err := s.lockStreak(tx, habitID)
		if err != nil {
			return newServiceError(opRecordCompletion, "streak_lock_failed", err)
		}

		var existing CompletionLog
		err = tx.Where("habit_id = ? AND log_date = ?", habitID, parsedDate.Format(DateLayout)).
			Take(&existing).Error
		if err == nil {
			log = existing
			alreadyLogged = true
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opRecordCompletion, "log_select_failed", err)
		}

		logID, err := s.idProvider.NewID()
		if err != nil {
			return newServiceError(opRecordCompletion, "id_generation_failed", err)
		}
		log = CompletionLog{
			LogID:   logID,
			HabitID: habitID,
			LogDate: parsedDate.Format(DateLayout),
			Note:    note,
		}
		if err := tx.Create(&log).Error; err != nil {
			return newServiceError(opRecordCompletion, "log_insert_failed", err)
		}

		var next StreakState
		if streak.LastLogDate == "" || log.LogDate > streak.LastLogDate {
			next = applyCompletion(streakState(streak), parsedDate)
		} else {
			// Back-filled date: rebuild from the full date set so the
			// counters match what in-order inserts would have produced.
			dates, err := s.allLogDates(tx, habitID)
			if err != nil {
				return newServiceError(opRecordCompletion, "log_select_failed", err)
			}
			next = recomputeStreak(streakState(streak), dates)
		}
		if err := s.saveStreak(tx, habitID, next); err != nil {
			return newServiceError(opRecordCompletion, "streak_save_failed", err)
		}
		return nil
	})
	if txErr != nil {
		if !errors.Is(txErr, ErrHabitNotFound) && !errors.Is(txErr, ErrForbidden) {
			s.logError(opRecordCompletion, "transaction_failed", txErr,
				zap.String("habit_id", habitID), zap.String("log_date", date))
		}
		return CompletionLog{}, false, txErr
	}
	return log, alreadyLogged, nil
}

// RemoveCompletion deletes the completion log for (habit, date) and rewinds
// the streak counters. Deleting the most recent log decrements the current
// streak and rewinds last_log_date; deleting an interior log recomputes the
// current streak from the remaining dates. The longest streak never shrinks.
func (s *Service) RemoveCompletion(ctx context.Context, userID, habitID, date string) error {
	parsedDate, err := ParseDate(date)
	if err != nil {
		return err
	}
	dateKey := parsedDate.Format(DateLayout)

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadOwnedHabit(tx, userID, habitID); err != nil {
			return err
		}

		streak, err := s.lockStreak(tx, habitID)
		if err != nil {
			return newServiceError(opRemoveCompletion, "streak_lock_failed", err)
		}

		result := tx.Where("habit_id = ? AND log_date = ?", habitID, dateKey).Delete(&CompletionLog{})
		if result.Error != nil {
			return newServiceError(opRemoveCompletion, "log_delete_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrLogNotFound
		}

		var next StreakState
		if dateKey == streak.LastLogDate {
			var latest CompletionLog
			err := tx.Where("habit_id = ?", habitID).
				Order("log_date DESC").
				Take(&latest).Error
			newLatest := ""
			if err == nil {
				newLatest = latest.LogDate
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return newServiceError(opRemoveCompletion, "log_select_failed", err)
			}
			next = applyLatestRemoval(streakState(streak), newLatest)
		} else {
			dates, err := s.allLogDates(tx, habitID)
			if err != nil {
				return newServiceError(opRemoveCompletion, "log_select_failed", err)
			}
			next = recomputeStreak(streakState(streak), dates)
		}

		if err := s.saveStreak(tx, habitID, next); err != nil {
			return newServiceError(opRemoveCompletion, "streak_save_failed", err)
		}
		return nil
	})
	if txErr != nil {
		if !errors.Is(txErr, ErrHabitNotFound) && !errors.Is(txErr, ErrForbidden) && !errors.Is(txErr, ErrLogNotFound) {
			s.logError(opRemoveCompletion, "transaction_failed", txErr,
				zap.String("habit_id", habitID), zap.String("log_date", date))
		}
		return txErr
	}
	return nil
}

// UpdateLogNote replaces the note on an existing completion log.
func (s *Service) UpdateLogNote(ctx context.Context, userID, habitID, date, note string) (CompletionLog, error) {
	parsedDate, err := ParseDate(date)
	if err != nil {
		return CompletionLog{}, err
	}
	dateKey := parsedDate.Format(DateLayout)

	var updated CompletionLog
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadOwnedHabit(tx, userID, habitID); err != nil {
			return err
		}
		var log CompletionLog
		err := tx.Where("habit_id = ? AND log_date = ?", habitID, dateKey).Take(&log).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrLogNotFound
		}
		if err != nil {
			return newServiceError(opUpdateLogNote, "log_select_failed", err)
		}
		log.Note = note
		if err := tx.Save(&log).Error; err != nil {
			return newServiceError(opUpdateLogNote, "log_save_failed", err)
		}
		updated = log
		return nil
	})
	if txErr != nil {
		if !errors.Is(txErr, ErrHabitNotFound) && !errors.Is(txErr, ErrForbidden) && !errors.Is(txErr, ErrLogNotFound) {
			s.logError(opUpdateLogNote, "transaction_failed", txErr,
				zap.String("habit_id", habitID), zap.String("log_date", date))
		}
		return CompletionLog{}, txErr
	}
	return updated, nil
}

func (s *Service) allLogDates(tx *gorm.DB, habitID string) ([]time.Time, error) {
	var logs []CompletionLog
	if err := tx.Where("habit_id = ?", habitID).Find(&logs).Error; err != nil {
		return nil, err
	}
	dates := make([]time.Time, 0, len(logs))
	for _, log := range logs {
		parsed, err := ParseDate(log.LogDate)
		if err != nil {
			continue
		}
		dates = append(dates, parsed)
	}
	return dates, nil
}

func (s *Service) loadOwnedHabit(tx *gorm.DB, userID, habitID string) (Habit, error) {
	var habit Habit
	err := tx.Where("habit_id = ?", habitID).Take(&habit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Habit{}, ErrHabitNotFound
	}
	if err != nil {
		return Habit{}, newServiceError(opGetHabit, "habit_select_failed", err)
	}
	if habit.UserID != userID {
		return Habit{}, ErrForbidden
	}
	return habit, nil
}

func (s *Service) lockStreak(tx *gorm.DB, habitID string) (Streak, error) {
	var streak Streak
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("habit_id = ?", habitID).
		Take(&streak).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Habits created before streak rows existed; start from zeros.
		streak = Streak{HabitID: habitID}
		if err := tx.Create(&streak).Error; err != nil {
			return Streak{}, err
		}
		return streak, nil
	}
	if err != nil {
		return Streak{}, err
	}
	return streak, nil
}

func (s *Service) saveStreak(tx *gorm.DB, habitID string, state StreakState) error {
	return tx.Model(&Streak{}).
		Where("habit_id = ?", habitID).
		Updates(map[string]interface{}{
			"current_streak": state.Current,
			"longest_streak": state.Longest,
			"last_log_date":  state.LastLogDate,
		}).Error
}

func streakState(streak Streak) StreakState {
	return StreakState{
		Current:     streak.CurrentStreak,
		Longest:     streak.LongestStreak,
		LastLogDate: streak.LastLogDate,
	}
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("habit service error", attrs...)
}
