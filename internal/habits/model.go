package habits

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// FrequencyType enumerates the supported completion schedules.
type FrequencyType string

const (
	// FrequencyDaily means the habit is expected every day of the week.
	FrequencyDaily FrequencyType = "daily"
	// FrequencySpecificDays restricts the habit to an explicit weekday set.
	FrequencySpecificDays FrequencyType = "specific_days"
)

// DateLayout is the canonical wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

var (
	// ErrInvalidDate indicates a date string that is not a valid YYYY-MM-DD value.
	ErrInvalidDate = errors.New("habits: invalid date")
	// ErrInvalidName indicates a habit name that is empty after trimming.
	ErrInvalidName = errors.New("habits: name is required")
	// ErrInvalidFrequency indicates an unknown frequency type or an empty weekday set.
	ErrInvalidFrequency = errors.New("habits: invalid frequency")
	// ErrInvalidReminderTime indicates a reminder time that is not a valid HH:MM value.
	ErrInvalidReminderTime = errors.New("habits: invalid reminder time")
)

// WeekdaySet holds ISO weekday numbers (1=Monday … 7=Sunday) serialized as a
// JSON array in a text column.
type WeekdaySet []int

// Contains reports whether the ISO weekday is part of the set.
func (s WeekdaySet) Contains(isoWeekday int) bool {
	for _, day := range s {
		if day == isoWeekday {
			return true
		}
	}
	return false
}

// Validate rejects weekday numbers outside 1..7.
func (s WeekdaySet) Validate() error {
	for _, day := range s {
		if day < 1 || day > 7 {
			return fmt.Errorf("%w: weekday %d out of range", ErrInvalidFrequency, day)
		}
	}
	return nil
}

// Value implements driver.Valuer for GORM storage.
func (s WeekdaySet) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	encoded, err := json.Marshal([]int(s))
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}

// Scan implements sql.Scanner for GORM retrieval.
func (s *WeekdaySet) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	var raw []byte
	switch typed := value.(type) {
	case []byte:
		raw = typed
	case string:
		raw = []byte(typed)
	default:
		return fmt.Errorf("habits: cannot scan %T into WeekdaySet", value)
	}
	if len(raw) == 0 {
		*s = nil
		return nil
	}
	var days []int
	if err := json.Unmarshal(raw, &days); err != nil {
		return err
	}
	*s = days
	return nil
}

// ParseDate parses a strict YYYY-MM-DD value into a UTC-midnight instant.
func ParseDate(value string) (time.Time, error) {
	parsed, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return parsed.UTC(), nil
}

// ISOWeekday maps time.Weekday onto the ISO numbering (1=Monday … 7=Sunday).
func ISOWeekday(t time.Time) int {
	weekday := int(t.Weekday())
	if weekday == 0 {
		return 7
	}
	return weekday
}

// Habit models a user-defined recurring task.
type Habit struct {
	HabitID         string        `gorm:"column:habit_id;primaryKey;size:190;not null"`
	UserID          string        `gorm:"column:user_id;size:190;not null;index:idx_habits_user"`
	Name            string        `gorm:"column:name;size:190;not null"`
	Description     string        `gorm:"column:description;type:text;not null;default:''"`
	Color           string        `gorm:"column:color;size:64;not null;default:''"`
	Icon            string        `gorm:"column:icon;size:64;not null;default:''"`
	FrequencyType   FrequencyType `gorm:"column:frequency_type;size:32;not null;default:'daily'"`
	FrequencyDays   WeekdaySet    `gorm:"column:frequency_days;type:text"`
	ReminderEnabled bool          `gorm:"column:reminder_enabled;not null;default:false"`
	ReminderTime    string        `gorm:"column:reminder_time;size:5;not null;default:''"`
	CreatedAt       time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time     `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Habit) TableName() string {
	return "habits"
}

// CompletionLog records that a habit was completed on one calendar date.
// At most one row exists per (habit, date); duplicate inserts are no-ops.
type CompletionLog struct {
	LogID     string    `gorm:"column:log_id;primaryKey;size:190;not null"`
	HabitID   string    `gorm:"column:habit_id;size:190;not null;uniqueIndex:idx_logs_habit_date,priority:1"`
	LogDate   string    `gorm:"column:log_date;size:10;not null;uniqueIndex:idx_logs_habit_date,priority:2"`
	Note      string    `gorm:"column:note;type:text;not null;default:''"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (CompletionLog) TableName() string {
	return "completion_logs"
}

// Streak holds the derived consecutive-completion counters for one habit.
// LastLogDate is empty when the habit has no completion logs.
type Streak struct {
	HabitID       string    `gorm:"column:habit_id;primaryKey;size:190;not null"`
	CurrentStreak int       `gorm:"column:current_streak;not null;default:0"`
	LongestStreak int       `gorm:"column:longest_streak;not null;default:0"`
	LastLogDate   string    `gorm:"column:last_log_date;size:10;not null;default:''"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Streak) TableName() string {
	return "streaks"
}
