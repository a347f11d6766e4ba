package habits

import (
	"context"
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	databasePath := filepath.Join(t.TempDir(), "habits.db")
	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Habit{}, &CompletionLog{}, &Streak{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	service, err := NewService(ServiceConfig{
		Database:   db,
		IDProvider: NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func mustCreateHabit(t *testing.T, service *Service, userID string, params HabitParams) Habit {
	t.Helper()
	habit, err := service.Create(context.Background(), userID, params)
	if err != nil {
		t.Fatalf("failed to create habit: %v", err)
	}
	return habit
}

func dailyParams(name string) HabitParams {
	return HabitParams{
		Name:          name,
		FrequencyType: FrequencyDaily,
	}
}

func loadStreak(t *testing.T, db *gorm.DB, habitID string) Streak {
	t.Helper()
	var streak Streak
	if err := db.Where("habit_id = ?", habitID).Take(&streak).Error; err != nil {
		t.Fatalf("failed to load streak: %v", err)
	}
	return streak
}
