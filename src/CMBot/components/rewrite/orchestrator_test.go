package rewrite

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pavelzar/content-maker/src/shared/store"
	"github.com/pavelzar/content-maker/src/shared/types"
)

func newTestStore(t *testing.T) *store.Store {
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
	st := store.New(db)
	if err := st.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}

func seedMessage(t *testing.T, st *store.Store, content string) *types.Message {
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
	msg := &types.Message{
		ChannelID:       ch.ID,
		SourceMessageID: 1,
		Content:         content,
		OriginTime:      time.Now(),
	}
	if _, err := st.InsertMessage(ctx, msg); err != nil {
		t.Fatalf("insert message: %v", err)
	}
	return msg
}

func TestRewriteSuccess(t *testing.T) {
	var gotPayload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rewrite" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"rewritten_text": "polished text"})
	}))
	defer srv.Close()

	st := newTestStore(t)
	ctx := context.Background()
	msg := seedMessage(t, st, "raw text")

	o := NewOrchestrator(st, NewClient(srv.URL, "secret-key", 0))
	attempt, err := o.Rewrite(ctx, msg.ID, "formal")
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	if gotPayload["api_key"] != "secret-key" || gotPayload["text"] != "raw text" || gotPayload["style"] != "formal" {
		t.Fatalf("unexpected payload: %v", gotPayload)
	}
	if attempt.Status != types.AttemptDone || attempt.ResultText != "polished text" {
		t.Fatalf("unexpected attempt: %+v", attempt)
	}

	got, err := st.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if got.Status != types.MessageInReview {
		t.Fatalf("message not advanced, status %s", got.Status)
	}
}

func TestRewriteGatewayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream quota exceeded", http.StatusBadGateway)
	}))
	defer srv.Close()

	st := newTestStore(t)
	ctx := context.Background()
	msg := seedMessage(t, st, "raw text")

	o := NewOrchestrator(st, NewClient(srv.URL, "secret-key", 0))
	if _, err := o.Rewrite(ctx, msg.ID, "formal"); !errors.Is(err, ErrGatewayFailed) {
		t.Fatalf("expected ErrGatewayFailed, got %v", err)
	}

	// Message stays retryable.
	got, err := st.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if got.Status != types.MessageNew {
		t.Fatalf("failed rewrite moved message to %s", got.Status)
	}

	// But the failed attempt is on record.
	attempt, err := st.LatestAttempt(ctx, msg.ID)
	if err != nil {
		t.Fatalf("latest attempt: %v", err)
	}
	if attempt.Status != types.AttemptFailed || attempt.Detail == "" {
		t.Fatalf("unexpected attempt record: %+v", attempt)
	}
}

func TestRewriteRequiresNewMessage(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	msg := seedMessage(t, st, "raw text")

	if err := st.AdvanceMessage(ctx, msg.ID, types.MessageNew, types.MessageInReview); err != nil {
		t.Fatalf("advance: %v", err)
	}

	o := NewOrchestrator(st, NewClient("http://unused", "key", 0))
	if _, err := o.Rewrite(ctx, msg.ID, "formal"); !errors.Is(err, ErrNotRewritable) {
		t.Fatalf("expected ErrNotRewritable, got %v", err)
	}
}

func TestRewriteRejectsEmptyStyle(t *testing.T) {
	st := newTestStore(t)
	msg := seedMessage(t, st, "raw text")

	o := NewOrchestrator(st, NewClient("http://unused", "key", 0))
	if _, err := o.Rewrite(context.Background(), msg.ID, ""); err == nil {
		t.Fatalf("expected error for empty style")
	}
}

func TestClientRejectsEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"rewritten_text": ""})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", 0)
	if _, err := c.Rewrite(context.Background(), "text", "default"); err == nil {
		t.Fatalf("expected error for empty rewritten_text")
	}
}
