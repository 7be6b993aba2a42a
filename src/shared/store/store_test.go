package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pavelzar/content-maker/src/shared/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	st := New(db)
	if err := st.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}

func seedChannel(t *testing.T, st *Store) *types.Channel {
	t.Helper()
	ctx := context.Background()
	block, err := st.CreateBlock(ctx, "news")
	if err != nil {
		t.Fatalf("create block: %v", err)
	}
	ch, err := st.AddChannel(ctx, block.ID, "@source")
	if err != nil {
		t.Fatalf("add channel: %v", err)
	}
	return ch
}

func TestInsertMessageIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ch := seedChannel(t, st)

	msg := &types.Message{
		ChannelID:       ch.ID,
		SourceMessageID: 42,
		Content:         "hello",
		OriginTime:      time.Now(),
	}
	fresh, err := st.InsertMessage(ctx, msg)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !fresh {
		t.Fatalf("first insert reported not fresh")
	}

	dup := &types.Message{
		ChannelID:       ch.ID,
		SourceMessageID: 42,
		Content:         "hello again",
		OriginTime:      time.Now(),
	}
	fresh, err = st.InsertMessage(ctx, dup)
	if err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if fresh {
		t.Fatalf("duplicate insert reported fresh")
	}

	got, err := st.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if got.Content != "hello" {
		t.Fatalf("duplicate overwrote content: %q", got.Content)
	}
	if got.Status != types.MessageNew {
		t.Fatalf("expected status new, got %s", got.Status)
	}
}

func TestListPendingOrdersByOriginTime(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ch := seedChannel(t, st)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	later := &types.Message{ChannelID: ch.ID, SourceMessageID: 2, Content: "b", OriginTime: base.Add(time.Hour)}
	earlier := &types.Message{ChannelID: ch.ID, SourceMessageID: 1, Content: "a", OriginTime: base}
	for _, m := range []*types.Message{later, earlier} {
		if _, err := st.InsertMessage(ctx, m); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	pending, err := st.ListPending(ctx, ch.BlockID)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(pending))
	}
	if pending[0].Content != "a" || pending[1].Content != "b" {
		t.Fatalf("wrong order: %s, %s", pending[0].Content, pending[1].Content)
	}

	if err := st.AdvanceMessage(ctx, earlier.ID, types.MessageNew, types.MessageInReview); err != nil {
		t.Fatalf("advance: %v", err)
	}
	pending, err = st.ListPending(ctx, ch.BlockID)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Content != "b" {
		t.Fatalf("in_review message still listed as pending")
	}
}

func TestAdvanceMessageGuardsCurrentStatus(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ch := seedChannel(t, st)

	msg := &types.Message{ChannelID: ch.ID, SourceMessageID: 7, Content: "x", OriginTime: time.Now()}
	if _, err := st.InsertMessage(ctx, msg); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := st.AdvanceMessage(ctx, msg.ID, types.MessageNew, types.MessageInReview); err != nil {
		t.Fatalf("advance: %v", err)
	}

	err := st.AdvanceMessage(ctx, msg.ID, types.MessageNew, types.MessageDiscarded)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for stale status guard, got %v", err)
	}

	got, err := st.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if got.Status != types.MessageInReview {
		t.Fatalf("status regressed to %s", got.Status)
	}
}

func TestMarkPublishedAtMostOnce(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	entry := &types.PublicationSchedule{
		ModerationDecisionID: 1,
		ScheduledTime:        time.Now(),
		Status:               types.ScheduleScheduled,
	}
	if err := st.CreateSchedule(ctx, entry); err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	won, err := st.MarkPublished(ctx, entry.ID)
	if err != nil {
		t.Fatalf("mark published: %v", err)
	}
	if !won {
		t.Fatalf("first publish did not win")
	}

	won, err = st.MarkPublished(ctx, entry.ID)
	if err != nil {
		t.Fatalf("second mark published: %v", err)
	}
	if won {
		t.Fatalf("second publish won")
	}
}

func TestCancelScheduleLeavesPublishedAlone(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	entry := &types.PublicationSchedule{
		ModerationDecisionID: 1,
		ScheduledTime:        time.Now(),
		Status:               types.ScheduleScheduled,
	}
	if err := st.CreateSchedule(ctx, entry); err != nil {
		t.Fatalf("create schedule: %v", err)
	}
	if _, err := st.MarkPublished(ctx, entry.ID); err != nil {
		t.Fatalf("mark published: %v", err)
	}

	if err := st.CancelSchedule(ctx, entry.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	var got types.PublicationSchedule
	if err := st.db.First(&got, entry.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Status != types.SchedulePublished {
		t.Fatalf("cancel rewrote a published entry to %s", got.Status)
	}
}

func TestListDueOrderingAndFiltering(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mk := func(offset time.Duration, status string) *types.PublicationSchedule {
		e := &types.PublicationSchedule{
			ModerationDecisionID: 1,
			ScheduledTime:        now.Add(offset),
			Status:               status,
		}
		if err := st.CreateSchedule(ctx, e); err != nil {
			t.Fatalf("create schedule: %v", err)
		}
		return e
	}

	second := mk(-time.Minute, types.ScheduleScheduled)
	first := mk(-time.Hour, types.ScheduleScheduled)
	mk(time.Hour, types.ScheduleScheduled)
	mk(-time.Hour, types.ScheduleCancelled)

	due, err := st.ListDue(ctx, now)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due entries, got %d", len(due))
	}
	if due[0].ID != first.ID || due[1].ID != second.ID {
		t.Fatalf("wrong order: %d, %d", due[0].ID, due[1].ID)
	}
}

func TestConfigUpsert(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	v, err := st.GetConfig(ctx, "target_chat_id")
	if err != nil {
		t.Fatalf("get absent: %v", err)
	}
	if v != "" {
		t.Fatalf("absent key returned %q", v)
	}

	if err := st.SetConfig(ctx, "target_chat_id", "123"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := st.SetConfig(ctx, "target_chat_id", "456"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	v, err = st.GetConfig(ctx, "target_chat_id")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v != "456" {
		t.Fatalf("expected last write to win, got %q", v)
	}
}

func TestDeleteBlockRemovesChannels(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ch := seedChannel(t, st)

	if err := st.DeleteBlock(ctx, ch.BlockID); err != nil {
		t.Fatalf("delete block: %v", err)
	}

	if _, err := st.GetBlock(ctx, ch.BlockID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for deleted block, got %v", err)
	}
	channels, err := st.ListChannels(ctx, ch.BlockID)
	if err != nil {
		t.Fatalf("list channels: %v", err)
	}
	if len(channels) != 0 {
		t.Fatalf("channels survived block delete: %d", len(channels))
	}
}

func TestLatestDecisionSeesRejectedHistory(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rejected := &types.ModerationDecision{RewriteAttemptID: 9, Status: types.DecisionRejected}
	if err := st.CreateDecision(ctx, rejected); err != nil {
		t.Fatalf("create decision: %v", err)
	}

	dec, err := st.LatestDecision(ctx, 9)
	if err != nil {
		t.Fatalf("latest decision: %v", err)
	}
	if dec.Status != types.DecisionRejected {
		t.Fatalf("expected rejected history, got %s", dec.Status)
	}

	if _, err := st.ActiveDecision(ctx, 9); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no active decision, got %v", err)
	}
}

func TestEditSessionRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sess := &types.EditSession{
		OperatorID:       "op1",
		RewriteAttemptID: 5,
		Stage:            types.EditAwaitingText,
	}
	if err := st.PutEditSession(ctx, sess); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := st.GetEditSession(ctx, "op1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Stage != types.EditAwaitingText || got.RewriteAttemptID != 5 {
		t.Fatalf("unexpected session: %+v", got)
	}

	got.Stage = types.EditAwaitingMedia
	got.DecisionID = 3
	if err := st.PutEditSession(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err = st.GetEditSession(ctx, "op1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Stage != types.EditAwaitingMedia || got.DecisionID != 3 {
		t.Fatalf("update lost: %+v", got)
	}

	if err := st.ClearEditSession(ctx, "op1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := st.GetEditSession(ctx, "op1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after clear, got %v", err)
	}
}
