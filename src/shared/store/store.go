package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pavelzar/content-maker/src/shared/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound reports a reference to a row that does not exist.
var ErrNotFound = errors.New("not found")

// Store owns all persistent pipeline state. Every write commits before the
// caller proceeds; multi-row writes run inside a single transaction.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(
		&types.ThemeBlock{},
		&types.Channel{},
		&types.Message{},
		&types.RewriteAttempt{},
		&types.ModerationDecision{},
		&types.PublicationSchedule{},
		&types.Setting{},
		&types.EditSession{},
	)
}

// Transaction runs fn against a store bound to a single atomic unit of work.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Blocks

func (s *Store) CreateBlock(ctx context.Context, title string) (*types.ThemeBlock, error) {
	block := types.ThemeBlock{Title: title}
	if err := s.db.WithContext(ctx).Create(&block).Error; err != nil {
		return nil, fmt.Errorf("create block: %w", err)
	}
	return &block, nil
}

func (s *Store) ListBlocks(ctx context.Context) ([]types.ThemeBlock, error) {
	var blocks []types.ThemeBlock
	err := s.db.WithContext(ctx).Order("id ASC").Find(&blocks).Error
	return blocks, err
}

func (s *Store) GetBlock(ctx context.Context, id uint64) (*types.ThemeBlock, error) {
	var block types.ThemeBlock
	if err := s.db.WithContext(ctx).First(&block, id).Error; err != nil {
		return nil, translate(err)
	}
	return &block, nil
}

// DeleteBlock removes a block and cascades to its channels.
func (s *Store) DeleteBlock(ctx context.Context, id uint64) error {
	return s.Transaction(ctx, func(tx *Store) error {
		var block types.ThemeBlock
		if err := tx.db.First(&block, id).Error; err != nil {
			return translate(err)
		}
		if err := tx.db.Where("block_id = ?", id).Delete(&types.Channel{}).Error; err != nil {
			return err
		}
		return tx.db.Delete(&block).Error
	})
}

// Channels

func (s *Store) AddChannel(ctx context.Context, blockID uint64, source string) (*types.Channel, error) {
	if _, err := s.GetBlock(ctx, blockID); err != nil {
		return nil, err
	}
	ch := types.Channel{BlockID: blockID, Source: source, AddedAt: time.Now()}
	if err := s.db.WithContext(ctx).Create(&ch).Error; err != nil {
		return nil, fmt.Errorf("add channel: %w", err)
	}
	return &ch, nil
}

func (s *Store) ListChannels(ctx context.Context, blockID uint64) ([]types.Channel, error) {
	var channels []types.Channel
	err := s.db.WithContext(ctx).Where("block_id = ?", blockID).Order("id ASC").Find(&channels).Error
	return channels, err
}

func (s *Store) RemoveChannel(ctx context.Context, blockID uint64, source string) error {
	res := s.db.WithContext(ctx).
		Where("block_id = ? AND source = ?", blockID, source).
		Delete(&types.Channel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Messages

// InsertMessage stores an ingested message. Inserting the same
// (channel, source message) pair twice is a no-op; the second call
// reports inserted=false.
func (s *Store) InsertMessage(ctx context.Context, msg *types.Message) (bool, error) {
	if msg.Status == "" {
		msg.Status = types.MessageNew
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(msg)
	if res.Error != nil {
		return false, fmt.Errorf("insert message: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) GetMessage(ctx context.Context, id uint64) (*types.Message, error) {
	var msg types.Message
	if err := s.db.WithContext(ctx).First(&msg, id).Error; err != nil {
		return nil, translate(err)
	}
	return &msg, nil
}

// ListPending returns status=new messages for all channels under a block,
// oldest first.
func (s *Store) ListPending(ctx context.Context, blockID uint64) ([]types.Message, error) {
	var msgs []types.Message
	err := s.db.WithContext(ctx).
		Joins("JOIN channels ON channels.id = messages.channel_id").
		Where("channels.block_id = ? AND messages.status = ?", blockID, types.MessageNew).
		Order("messages.origin_time ASC, messages.id ASC").
		Find(&msgs).Error
	return msgs, err
}

// AdvanceMessage moves a message forward between statuses. The update is
// guarded by the expected current status so a status never regresses.
func (s *Store) AdvanceMessage(ctx context.Context, id uint64, from, to string) error {
	res := s.db.WithContext(ctx).
		Model(&types.Message{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("message %d not in status %q: %w", id, from, ErrNotFound)
	}
	return nil
}

// Rewrite attempts

func (s *Store) CreateAttempt(ctx context.Context, attempt *types.RewriteAttempt) error {
	return s.db.WithContext(ctx).Create(attempt).Error
}

func (s *Store) GetAttempt(ctx context.Context, id uint64) (*types.RewriteAttempt, error) {
	var attempt types.RewriteAttempt
	if err := s.db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		return nil, translate(err)
	}
	return &attempt, nil
}

// LatestAttempt returns the most recent attempt for a message; only the
// latest one matters for moderation.
func (s *Store) LatestAttempt(ctx context.Context, messageID uint64) (*types.RewriteAttempt, error) {
	var attempt types.RewriteAttempt
	err := s.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("id DESC").
		First(&attempt).Error
	if err != nil {
		return nil, translate(err)
	}
	return &attempt, nil
}

// Moderation decisions

func (s *Store) CreateDecision(ctx context.Context, dec *types.ModerationDecision) error {
	return s.db.WithContext(ctx).Create(dec).Error
}

func (s *Store) GetDecision(ctx context.Context, id uint64) (*types.ModerationDecision, error) {
	var dec types.ModerationDecision
	if err := s.db.WithContext(ctx).First(&dec, id).Error; err != nil {
		return nil, translate(err)
	}
	return &dec, nil
}

// LatestDecision returns the most recent decision for an attempt in any
// status, or ErrNotFound when the attempt has no decision yet.
func (s *Store) LatestDecision(ctx context.Context, attemptID uint64) (*types.ModerationDecision, error) {
	var dec types.ModerationDecision
	err := s.db.WithContext(ctx).
		Where("rewrite_attempt_id = ?", attemptID).
		Order("id DESC").
		First(&dec).Error
	if err != nil {
		return nil, translate(err)
	}
	return &dec, nil
}

// ActiveDecision returns the latest non-rejected decision for an attempt,
// or ErrNotFound when none exists.
func (s *Store) ActiveDecision(ctx context.Context, attemptID uint64) (*types.ModerationDecision, error) {
	var dec types.ModerationDecision
	err := s.db.WithContext(ctx).
		Where("rewrite_attempt_id = ? AND status <> ?", attemptID, types.DecisionRejected).
		Order("id DESC").
		First(&dec).Error
	if err != nil {
		return nil, translate(err)
	}
	return &dec, nil
}

func (s *Store) SaveDecision(ctx context.Context, dec *types.ModerationDecision) error {
	return s.db.WithContext(ctx).Save(dec).Error
}

// Publication schedule

func (s *Store) CreateSchedule(ctx context.Context, entry *types.PublicationSchedule) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// ListDue returns scheduled entries due at or before now, earliest first,
// ties broken by id.
func (s *Store) ListDue(ctx context.Context, now time.Time) ([]types.PublicationSchedule, error) {
	var entries []types.PublicationSchedule
	err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_time <= ?", types.ScheduleScheduled, now).
		Order("scheduled_time ASC, id ASC").
		Find(&entries).Error
	return entries, err
}

func (s *Store) ListScheduled(ctx context.Context) ([]types.PublicationSchedule, error) {
	var entries []types.PublicationSchedule
	err := s.db.WithContext(ctx).
		Where("status = ?", types.ScheduleScheduled).
		Order("scheduled_time ASC, id ASC").
		Find(&entries).Error
	return entries, err
}

// MarkPublished flips a scheduled entry to published. The guard on the
// current status makes the transition at-most-once and closes the race
// against an operator cancelling the entry mid-tick.
func (s *Store) MarkPublished(ctx context.Context, id uint64) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&types.PublicationSchedule{}).
		Where("id = ? AND status = ?", id, types.ScheduleScheduled).
		Update("status", types.SchedulePublished)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CancelForDecision cancels all still-scheduled entries of a decision.
func (s *Store) CancelForDecision(ctx context.Context, decisionID uint64) error {
	return s.db.WithContext(ctx).
		Model(&types.PublicationSchedule{}).
		Where("moderation_decision_id = ? AND status = ?", decisionID, types.ScheduleScheduled).
		Update("status", types.ScheduleCancelled).Error
}

func (s *Store) CancelSchedule(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).
		Model(&types.PublicationSchedule{}).
		Where("id = ? AND status = ?", id, types.ScheduleScheduled).
		Update("status", types.ScheduleCancelled).Error
}

// Config

// GetConfig reads a runtime setting. Values are read fresh on every use so
// direct database edits take effect without a restart. Absent keys return
// the empty string.
func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	var setting types.Setting
	err := s.db.WithContext(ctx).First(&setting, "name = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}

// SetConfig upserts a runtime setting, last writer wins.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).
		Create(&types.Setting{Name: key, Value: value}).Error
}

// Edit sessions

func (s *Store) PutEditSession(ctx context.Context, sess *types.EditSession) error {
	sess.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).Save(sess).Error
}

func (s *Store) GetEditSession(ctx context.Context, operatorID string) (*types.EditSession, error) {
	var sess types.EditSession
	err := s.db.WithContext(ctx).First(&sess, "operator_id = ?", operatorID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &sess, nil
}

func (s *Store) ClearEditSession(ctx context.Context, operatorID string) error {
	return s.db.WithContext(ctx).
		Delete(&types.EditSession{}, "operator_id = ?", operatorID).Error
}
