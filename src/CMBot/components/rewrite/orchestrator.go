package rewrite

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/pavelzar/content-maker/src/shared/store"
	"github.com/pavelzar/content-maker/src/shared/types"
)

var (
	// ErrGatewayFailed marks rewrite failures; the message stays status=new
	// and can be retried with another attempt.
	ErrGatewayFailed = errors.New("rewrite gateway failed")

	// ErrNotRewritable reports a message that is not awaiting rewrite.
	ErrNotRewritable = errors.New("message not awaiting rewrite")
)

// Orchestrator feeds new messages through the rewrite gateway and records
// the outcome.
type Orchestrator struct {
	store   *store.Store
	gateway Gateway
}

func NewOrchestrator(st *store.Store, gateway Gateway) *Orchestrator {
	return &Orchestrator{store: st, gateway: gateway}
}

// Rewrite sends the message content through the gateway. On success the
// attempt is recorded done and the message advances to in_review in one
// transaction. On failure a failed attempt is recorded and the message is
// left untouched. The gateway call happens outside any transaction.
func (o *Orchestrator) Rewrite(ctx context.Context, messageID uint64, style string) (*types.RewriteAttempt, error) {
	if style == "" {
		return nil, fmt.Errorf("style must not be empty")
	}

	msg, err := o.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Status != types.MessageNew {
		return nil, fmt.Errorf("message %d is %s: %w", messageID, msg.Status, ErrNotRewritable)
	}

	result, gwErr := o.gateway.Rewrite(ctx, msg.Content, style)
	if gwErr != nil {
		attempt := &types.RewriteAttempt{
			MessageID: messageID,
			Style:     style,
			Status:    types.AttemptFailed,
			Detail:    gwErr.Error(),
		}
		if err := o.store.CreateAttempt(ctx, attempt); err != nil {
			log.Printf("rewrite: failed to record failed attempt for message %d: %v", messageID, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrGatewayFailed, gwErr)
	}

	attempt := &types.RewriteAttempt{
		MessageID:  messageID,
		Style:      style,
		ResultText: result,
		Status:     types.AttemptDone,
	}
	err = o.store.Transaction(ctx, func(tx *store.Store) error {
		if err := tx.CreateAttempt(ctx, attempt); err != nil {
			return err
		}
		return tx.AdvanceMessage(ctx, messageID, types.MessageNew, types.MessageInReview)
	})
	if err != nil {
		return nil, fmt.Errorf("record attempt: %w", err)
	}

	return attempt, nil
}
