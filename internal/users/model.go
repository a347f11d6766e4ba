package users

import (
	"strings"
	"time"
)

// User is an account that owns habits. Timezone is the IANA zone name all of
// the user's reminder evaluation happens in.
type User struct {
	UserID       string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	Username     string    `gorm:"column:username;size:190;not null"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex:idx_users_email"`
	PasswordHash string    `gorm:"column:password_hash;size:190;not null"`
	Timezone     string    `gorm:"column:timezone;size:64;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user accounts.
func (User) TableName() string {
	return "users"
}

// normalize value helper used across service implementation.
func normalize(value string) string {
	return strings.TrimSpace(value)
}
