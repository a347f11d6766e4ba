package server

import (
	"errors"
	"net/http"

	"github.com/emberlabs/ember/backend/internal/habits"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type habitRequestPayload struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	Color           string `json:"color"`
	Icon            string `json:"icon"`
	FrequencyType   string `json:"frequency_type"`
	FrequencyDays   []int  `json:"frequency_days"`
	ReminderEnabled bool   `json:"reminder_enabled"`
	ReminderTime    string `json:"reminder_time"`
}

type habitPayload struct {
	HabitID         string   `json:"habit_id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Color           string   `json:"color"`
	Icon            string   `json:"icon"`
	FrequencyType   string   `json:"frequency_type"`
	FrequencyDays   []int    `json:"frequency_days"`
	ReminderEnabled bool     `json:"reminder_enabled"`
	ReminderTime    string   `json:"reminder_time"`
	CurrentStreak   int      `json:"current_streak"`
	LongestStreak   int      `json:"longest_streak"`
	LastLogDate     string   `json:"last_log_date,omitempty"`
	LogDates        []string `json:"log_dates,omitempty"`
}

type logPayload struct {
	LogID   string `json:"log_id"`
	LogDate string `json:"log_date"`
	Note    string `json:"note"`
}

type habitDetailPayload struct {
	habitPayload
	Logs []logPayload `json:"logs"`
}

type recordCompletionRequest struct {
	Date string `json:"date"`
	Note string `json:"note"`
}

type updateLogNoteRequest struct {
	LogDate string `json:"log_date"`
	Note    string `json:"note"`
}

func toHabitPayload(habit habits.Habit, streak habits.Streak, logDates []string) habitPayload {
	return habitPayload{
		HabitID:         habit.HabitID,
		Name:            habit.Name,
		Description:     habit.Description,
		Color:           habit.Color,
		Icon:            habit.Icon,
		FrequencyType:   string(habit.FrequencyType),
		FrequencyDays:   habit.FrequencyDays,
		ReminderEnabled: habit.ReminderEnabled,
		ReminderTime:    habit.ReminderTime,
		CurrentStreak:   streak.CurrentStreak,
		LongestStreak:   streak.LongestStreak,
		LastLogDate:     streak.LastLogDate,
		LogDates:        logDates,
	}
}

func fromHabitRequest(request habitRequestPayload) habits.HabitParams {
	return habits.HabitParams{
		Name:            request.Name,
		Description:     request.Description,
		Color:           request.Color,
		Icon:            request.Icon,
		FrequencyType:   habits.FrequencyType(request.FrequencyType),
		FrequencyDays:   request.FrequencyDays,
		ReminderEnabled: request.ReminderEnabled,
		ReminderTime:    request.ReminderTime,
	}
}

func (h *httpHandler) handleListHabits(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	listed, err := h.habitService.List(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list habits", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "habit_list_failed"})
		return
	}
	response := make([]habitPayload, 0, len(listed))
	for _, entry := range listed {
		response = append(response, toHabitPayload(entry.Habit, entry.Streak, entry.LogDates))
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleCreateHabit(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	var request habitRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	habit, err := h.habitService.Create(c.Request.Context(), userID, fromHabitRequest(request))
	if err != nil {
		h.respondHabitError(c, "habit_create_failed", err)
		return
	}
	c.JSON(http.StatusCreated, toHabitPayload(habit, habits.Streak{}, nil))
}

func (h *httpHandler) handleGetHabit(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	detail, err := h.habitService.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.respondHabitError(c, "habit_get_failed", err)
		return
	}
	logs := make([]logPayload, 0, len(detail.Logs))
	for _, log := range detail.Logs {
		logs = append(logs, logPayload{LogID: log.LogID, LogDate: log.LogDate, Note: log.Note})
	}
	c.JSON(http.StatusOK, habitDetailPayload{
		habitPayload: toHabitPayload(detail.Habit, detail.Streak, nil),
		Logs:         logs,
	})
}

func (h *httpHandler) handleUpdateHabit(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	var request habitRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	habit, err := h.habitService.Update(c.Request.Context(), userID, c.Param("id"), fromHabitRequest(request))
	if err != nil {
		h.respondHabitError(c, "habit_update_failed", err)
		return
	}
	c.JSON(http.StatusOK, toHabitPayload(habit, habits.Streak{}, nil))
}

func (h *httpHandler) handleDeleteHabit(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if err := h.habitService.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.respondHabitError(c, "habit_delete_failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleRecordCompletion(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	var request recordCompletionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	log, alreadyLogged, err := h.habitService.RecordCompletion(c.Request.Context(), userID, c.Param("id"), request.Date, request.Note)
	if err != nil {
		h.respondHabitError(c, "completion_record_failed", err)
		return
	}
	payload := gin.H{
		"log":            logPayload{LogID: log.LogID, LogDate: log.LogDate, Note: log.Note},
		"already_logged": alreadyLogged,
	}
	if alreadyLogged {
		c.JSON(http.StatusOK, payload)
		return
	}
	c.JSON(http.StatusCreated, payload)
}

func (h *httpHandler) handleRemoveCompletion(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	err := h.habitService.RemoveCompletion(c.Request.Context(), userID, c.Param("id"), c.Param("date"))
	if err != nil {
		h.respondHabitError(c, "completion_remove_failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleUpdateLogNote(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	var request updateLogNoteRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	log, err := h.habitService.UpdateLogNote(c.Request.Context(), userID, c.Param("id"), request.LogDate, request.Note)
	if err != nil {
		h.respondHabitError(c, "log_note_update_failed", err)
		return
	}
	c.JSON(http.StatusOK, logPayload{LogID: log.LogID, LogDate: log.LogDate, Note: log.Note})
}

// respondHabitError maps service failures onto HTTP statuses. Ownership
// violations surface as 404 so foreign habit identifiers stay unguessable.
func (h *httpHandler) respondHabitError(c *gin.Context, code string, err error) {
	switch {
	case errors.Is(err, habits.ErrHabitNotFound), errors.Is(err, habits.ErrForbidden), errors.Is(err, habits.ErrLogNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, habits.ErrInvalidDate), errors.Is(err, habits.ErrInvalidName),
		errors.Is(err, habits.ErrInvalidFrequency), errors.Is(err, habits.ErrInvalidReminderTime):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
	default:
		h.logger.Error("habit request failed", zap.String("code", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": code})
	}
}
