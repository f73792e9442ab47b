package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	appLog "focuscal/internal/log"
	"focuscal/internal/model"
)

var (
	// ErrNotFound is returned when a row addressed by ID does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a row is not in a state that allows the
	// requested change.
	ErrConflict = errors.New("store: conflict")
)

// Store reads the engine's inputs and persists its suggestions.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// FetchMeetings returns meetings intersecting [start, end) ordered by start.
func (s *Store) FetchMeetings(ctx context.Context, userID string, start, end time.Time) ([]model.Commitment, error) {
	var rows []Meeting
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND start_time < ? AND end_time > ?", userID, end.UTC(), start.UTC()).
		Order("start_time").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch meetings: %w", err)
	}

	out := make([]model.Commitment, 0, len(rows))
	for _, m := range rows {
		out = append(out, model.Commitment{
			ID:     m.ID,
			Title:  m.Title,
			Source: model.SourceMeeting,
			Start:  m.StartTime,
			End:    m.EndTime,
		})
	}
	return out, nil
}

// FetchConfirmedBlocks returns confirmed time blocks of any type
// intersecting [start, end). Suggested and dismissed blocks do not occupy
// time.
func (s *Store) FetchConfirmedBlocks(ctx context.Context, userID string, start, end time.Time) ([]model.Commitment, error) {
	var rows []TimeBlock
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND start_time < ? AND end_time > ?", userID, BlockStatusConfirmed, end.UTC(), start.UTC()).
		Order("start_time").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch confirmed blocks: %w", err)
	}

	out := make([]model.Commitment, 0, len(rows))
	for _, b := range rows {
		out = append(out, model.Commitment{
			ID:     b.ID,
			Title:  b.Title,
			Source: model.SourceTimeBlock,
			Start:  b.StartTime,
			End:    b.EndTime,
		})
	}
	return out, nil
}

const priorityOrder = "CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END"

// FetchPendingTasks returns pending tasks, high priority first and oldest
// first within a priority.
func (s *Store) FetchPendingTasks(ctx context.Context, userID string) ([]model.TaskCandidate, error) {
	var rows []Task
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, TaskStatusPending).
		Order(priorityOrder).
		Order("created_at").
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch pending tasks: %w", err)
	}

	out := make([]model.TaskCandidate, 0, len(rows))
	for _, t := range rows {
		out = append(out, model.TaskCandidate{
			ID:        t.ID,
			Title:     t.Title,
			Priority:  model.ParsePriority(t.Priority),
			UpdatedAt: t.UpdatedAt,
		})
	}
	return out, nil
}

// FetchPreferences returns the user's preferences. A missing row, or a row
// without working hours, yields the Mon-Fri 09:00-17:00 default.
func (s *Store) FetchPreferences(ctx context.Context, userID string) (model.Preferences, error) {
	var row Preference
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.DefaultPreferences(), nil
	}
	if err != nil {
		return model.Preferences{}, fmt.Errorf("fetch preferences: %w", err)
	}

	prefs := model.Preferences{
		WorkingHours:      model.DefaultWorkingHours(),
		OptimalFocusHours: row.OptimalFocusTime,
		Timezone:          row.Timezone,
		UpdatedAt:         row.UpdatedAt,
		Found:             true,
	}
	if len(row.WorkingHours) > 0 {
		policy, err := model.WorkingHoursFromMap(row.WorkingHours)
		if err != nil {
			appLog.Error("stored working hours invalid; using default", err, "user_id", userID)
		} else {
			prefs.WorkingHours = policy
		}
	}
	return prefs, nil
}

// SavePreferences upserts the user's preferences.
func (s *Store) SavePreferences(ctx context.Context, userID string, prefs model.Preferences) error {
	row := Preference{
		UserID:           userID,
		WorkingHours:     prefs.WorkingHours.Map(),
		OptimalFocusTime: prefs.OptimalFocusHours,
		Timezone:         prefs.Timezone,
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

// PersistSuggestions replaces the user's unconfirmed focus suggestions that
// start inside [start, end) with the given list. Confirmed and dismissed
// blocks are never touched, so repeated runs over the same window leave a
// single current set of suggestions. The replacement is atomic.
func (s *Store) PersistSuggestions(ctx context.Context, userID string, start, end time.Time, suggestions []model.FocusBlockSuggestion) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ? AND status = ? AND block_type = ? AND start_time >= ? AND start_time < ?",
			userID, BlockStatusSuggested, BlockTypeFocus, start.UTC(), end.UTC()).
			Delete(&TimeBlock{}).Error
		if err != nil {
			return fmt.Errorf("clear previous suggestions: %w", err)
		}
		if len(suggestions) == 0 {
			return nil
		}

		rows := make([]TimeBlock, 0, len(suggestions))
		for _, sg := range suggestions {
			rows = append(rows, TimeBlock{
				ID:            uuid.NewString(),
				UserID:        userID,
				Title:         sg.Title,
				StartTime:     sg.StartTime.UTC(),
				EndTime:       sg.EndTime.UTC(),
				BlockType:     BlockTypeFocus,
				Status:        BlockStatusSuggested,
				RelatedTaskID: sg.RelatedTaskID,
				Notes:         sg.Notes,
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("insert suggestions: %w", err)
		}
		return nil
	})
}

// ConfirmTimeBlock marks a suggested block as confirmed so later runs treat
// it as a commitment.
func (s *Store) ConfirmTimeBlock(ctx context.Context, userID, id string) (TimeBlock, error) {
	var block TimeBlock
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ? AND user_id = ?", id, userID).Take(&block).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if block.Status != BlockStatusSuggested {
			return fmt.Errorf("%w: block %s is %s", ErrConflict, id, block.Status)
		}
		block.Status = BlockStatusConfirmed
		return tx.Model(&block).Update("status", BlockStatusConfirmed).Error
	})
	if err != nil {
		return TimeBlock{}, err
	}
	return block, nil
}

// ListTimeBlocks returns all blocks of a user starting inside [start, end).
func (s *Store) ListTimeBlocks(ctx context.Context, userID string, start, end time.Time) ([]TimeBlock, error) {
	var rows []TimeBlock
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND start_time >= ? AND start_time < ?", userID, start.UTC(), end.UTC()).
		Order("start_time").
		Find(&rows).Error
	return rows, err
}

// CreateMeeting inserts a meeting, assigning an ID when empty.
func (s *Store) CreateMeeting(ctx context.Context, m *Meeting) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.StartTime, m.EndTime = m.StartTime.UTC(), m.EndTime.UTC()
	return s.db.WithContext(ctx).Create(m).Error
}

// CreateTimeBlock inserts a time block, assigning an ID when empty.
func (s *Store) CreateTimeBlock(ctx context.Context, b *TimeBlock) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.BlockType == "" {
		b.BlockType = BlockTypeFocus
	}
	if b.Status == "" {
		b.Status = BlockStatusSuggested
	}
	b.StartTime, b.EndTime = b.StartTime.UTC(), b.EndTime.UTC()
	return s.db.WithContext(ctx).Create(b).Error
}

// CreateTask inserts a task, assigning an ID when empty.
func (s *Store) CreateTask(ctx context.Context, t *Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = TaskStatusPending
	}
	t.Priority = string(model.ParsePriority(t.Priority))
	return s.db.WithContext(ctx).Create(t).Error
}
