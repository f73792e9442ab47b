package store

import (
	"time"

	"focuscal/internal/model"
)

// Block types.
const (
	BlockTypeFocus   = model.BlockTypeFocus
	BlockTypeMeeting = "meeting"
	BlockTypeBreak   = "break"
)

// BlockStatus tracks a time block from suggestion to confirmation.
type BlockStatus string

const (
	BlockStatusSuggested BlockStatus = "suggested"
	BlockStatusConfirmed BlockStatus = "confirmed"
	BlockStatusDismissed BlockStatus = "dismissed"
)

// TaskStatus tracks whether a task still needs time.
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusDone    TaskStatus = "done"
)

// Meeting is a calendar meeting owned by the assistant's own calendar.
type Meeting struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(64);index:idx_meetings_user_start;not null" json:"user_id"`
	Title     string    `gorm:"type:varchar(255)" json:"title"`
	StartTime time.Time `gorm:"index:idx_meetings_user_start;not null" json:"start_time"`
	EndTime   time.Time `gorm:"not null" json:"end_time"`
	Location  string    `gorm:"type:varchar(255)" json:"location,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Meeting) TableName() string {
	return "meetings"
}

// TimeBlock is a planned interval: focus, meeting prep or break. Suggested
// blocks come from the engine; only confirmed blocks occupy time.
type TimeBlock struct {
	ID            string      `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID        string      `gorm:"type:varchar(64);index:idx_time_blocks_user_start;not null" json:"user_id"`
	Title         string      `gorm:"type:varchar(255)" json:"title"`
	StartTime     time.Time   `gorm:"index:idx_time_blocks_user_start;not null" json:"start_time"`
	EndTime       time.Time   `gorm:"not null" json:"end_time"`
	BlockType     string      `gorm:"type:varchar(16);not null;default:focus" json:"block_type"`
	Status        BlockStatus `gorm:"type:varchar(16);index;not null;default:suggested" json:"status"`
	RelatedTaskID *string     `gorm:"type:varchar(36)" json:"related_task_id,omitempty"`
	Notes         string      `gorm:"type:text" json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (TimeBlock) TableName() string {
	return "time_blocks"
}

// Task is a to-do item that focus blocks can be dedicated to.
type Task struct {
	ID       string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID   string     `gorm:"type:varchar(64);index:idx_tasks_user_status;not null" json:"user_id"`
	Title    string     `gorm:"type:varchar(255);not null" json:"title"`
	Priority string     `gorm:"type:varchar(8);not null;default:medium" json:"priority"`
	Status   TaskStatus `gorm:"type:varchar(16);index:idx_tasks_user_status;not null;default:pending" json:"status"`
	DueDate  *time.Time `json:"due_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Task) TableName() string {
	return "tasks"
}

// Preference holds a user's scheduling preferences.
type Preference struct {
	UserID string `gorm:"type:varchar(64);primaryKey" json:"user_id"`
	// WorkingHours is keyed by weekday name; null marks a non-working day.
	WorkingHours map[string]*model.DayHours `gorm:"serializer:json;type:text" json:"working_hours"`
	// OptimalFocusTime is the preferred focus block length in hours.
	OptimalFocusTime float64 `json:"optimal_focus_time"`
	Timezone         string  `gorm:"type:varchar(64)" json:"timezone,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Preference) TableName() string {
	return "preferences"
}
