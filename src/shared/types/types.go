package types

import "time"

// Message statuses
const (
	MessageNew       = "new"
	MessageInReview  = "in_review"
	MessageDiscarded = "discarded"
)

// Rewrite attempt statuses
const (
	AttemptPending = "pending"
	AttemptDone    = "done"
	AttemptFailed  = "failed"
)

// Moderation decision statuses
const (
	DecisionPendingEdit = "pending_edit"
	DecisionApproved    = "approved"
	DecisionRejected    = "rejected"
)

// Publication schedule statuses
const (
	ScheduleScheduled = "scheduled"
	SchedulePublished = "published"
	ScheduleCancelled = "cancelled"
)

// Edit session stages
const (
	EditAwaitingText  = "awaiting_text"
	EditAwaitingMedia = "awaiting_media"
)

// Theme blocks group source channels by topic
type ThemeBlock struct {
	ID        uint64    `gorm:"primaryKey"`
	Title     string    `gorm:"size:128;unique;not null"`
	CreatedAt time.Time
	Channels  []Channel `gorm:"foreignKey:BlockID;constraint:OnDelete:CASCADE"`
}

// Source channels scraped for content
type Channel struct {
	ID      uint64 `gorm:"primaryKey"`
	BlockID uint64 `gorm:"uniqueIndex:uq_block_source;not null"`
	Source  string `gorm:"size:128;uniqueIndex:uq_block_source;not null"`
	AddedAt time.Time
}

// Ingested source messages
type Message struct {
	ID              uint64 `gorm:"primaryKey"`
	ChannelID       uint64 `gorm:"uniqueIndex:uq_channel_msg;not null"`
	SourceMessageID int64  `gorm:"uniqueIndex:uq_channel_msg;not null"`
	Content         string `gorm:"type:text"`
	ContentHash     int64  `gorm:"index"`
	OriginTime      time.Time
	Status          string `gorm:"size:16;default:new;index"`
	CreatedAt       time.Time
}

// Rewrite gateway attempts; a message may carry several
type RewriteAttempt struct {
	ID         uint64 `gorm:"primaryKey"`
	MessageID  uint64 `gorm:"index;not null"`
	Style      string `gorm:"size:32;not null"`
	ResultText string `gorm:"type:text"`
	Status     string `gorm:"size:16;default:pending"`
	Detail     string `gorm:"size:512"`
	CreatedAt  time.Time
}

// Operator moderation decisions over a rewrite attempt
type ModerationDecision struct {
	ID               uint64 `gorm:"primaryKey"`
	RewriteAttemptID uint64 `gorm:"index;not null"`
	FinalText        string `gorm:"type:text"`
	MediaRef         string `gorm:"size:512"`
	Status           string `gorm:"size:16;default:pending_edit"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Publication queue entries
type PublicationSchedule struct {
	ID                   uint64    `gorm:"primaryKey"`
	ModerationDecisionID uint64    `gorm:"index;not null"`
	ScheduledTime        time.Time `gorm:"index;not null"`
	Status               string    `gorm:"size:16;default:scheduled;index"`
	CreatedAt            time.Time
}

// Settings
type Setting struct {
	Name  string `gorm:"primaryKey;size:64"`
	Value string `gorm:"size:512;not null"`
}

// EditSession persists where an in-progress operator edit is, so a
// restarted process can resume the conversation from the database.
type EditSession struct {
	OperatorID       string `gorm:"primaryKey;size:64"`
	RewriteAttemptID uint64 `gorm:"not null"`
	DecisionID       uint64
	Stage            string `gorm:"size:24;not null"`
	UpdatedAt        time.Time
}
