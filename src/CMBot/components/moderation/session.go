package moderation

import (
	"context"
	"errors"
	"fmt"

	"github.com/pavelzar/content-maker/src/shared/store"
	"github.com/pavelzar/content-maker/src/shared/types"
)

// ErrNoSession reports that the operator has no edit conversation open.
var ErrNoSession = errors.New("no open edit session")

// The edit flow is a short conversation: the operator picks "edit", sends
// the replacement text, then optionally one media item. Where that
// conversation currently stands is a persisted row keyed by operator, not
// in-process state, so a restart mid-edit resumes cleanly.

// StartEdit opens an edit session for the operator against an attempt.
func (m *Machine) StartEdit(ctx context.Context, operatorID string, attemptID uint64) error {
	if _, err := m.attemptForModeration(ctx, attemptID); err != nil {
		return err
	}

	if dec, err := m.store.LatestDecision(ctx, attemptID); err == nil {
		return fmt.Errorf("attempt %d decision is %s: %w", attemptID, dec.Status, ErrInvalidTransition)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	return m.store.PutEditSession(ctx, &types.EditSession{
		OperatorID:       operatorID,
		RewriteAttemptID: attemptID,
		Stage:            types.EditAwaitingText,
	})
}

// OpenSession returns the operator's current edit session, if any.
func (m *Machine) OpenSession(ctx context.Context, operatorID string) (*types.EditSession, error) {
	sess, err := m.store.GetEditSession(ctx, operatorID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoSession
	}
	return sess, err
}

// SubmitText records the operator's replacement text and moves the
// conversation to the media step.
func (m *Machine) SubmitText(ctx context.Context, operatorID, text string) (*types.ModerationDecision, error) {
	sess, err := m.OpenSession(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	if sess.Stage != types.EditAwaitingText {
		return nil, fmt.Errorf("session is %s: %w", sess.Stage, ErrInvalidTransition)
	}

	dec, err := m.BeginEdit(ctx, sess.RewriteAttemptID, text)
	if err != nil {
		return nil, err
	}

	sess.DecisionID = dec.ID
	sess.Stage = types.EditAwaitingMedia
	if err := m.store.PutEditSession(ctx, sess); err != nil {
		return nil, err
	}
	return dec, nil
}

// SubmitMedia attaches the media reference and closes the conversation.
// One media item finalizes the edit automatically.
func (m *Machine) SubmitMedia(ctx context.Context, operatorID, mediaRef string) (*types.ModerationDecision, error) {
	sess, err := m.OpenSession(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	if sess.Stage != types.EditAwaitingMedia {
		return nil, fmt.Errorf("session is %s: %w", sess.Stage, ErrInvalidTransition)
	}

	dec, err := m.AttachMedia(ctx, sess.DecisionID, mediaRef)
	if err != nil {
		return nil, err
	}

	if err := m.store.ClearEditSession(ctx, operatorID); err != nil {
		return nil, err
	}
	return dec, nil
}

// SkipMedia closes the conversation without media.
func (m *Machine) SkipMedia(ctx context.Context, operatorID string) (*types.ModerationDecision, error) {
	sess, err := m.OpenSession(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	if sess.Stage != types.EditAwaitingMedia {
		return nil, fmt.Errorf("session is %s: %w", sess.Stage, ErrInvalidTransition)
	}

	dec, err := m.FinalizeEdit(ctx, sess.DecisionID)
	if err != nil {
		return nil, err
	}

	if err := m.store.ClearEditSession(ctx, operatorID); err != nil {
		return nil, err
	}
	return dec, nil
}

// AbandonEdit drops an open session without touching any decision.
func (m *Machine) AbandonEdit(ctx context.Context, operatorID string) error {
	return m.store.ClearEditSession(ctx, operatorID)
}

// AttemptForDecision resolves the owning attempt id for session routing.
func (m *Machine) AttemptForDecision(ctx context.Context, decisionID uint64) (uint64, error) {
	dec, err := m.store.GetDecision(ctx, decisionID)
	if err != nil {
		return 0, err
	}
	return dec.RewriteAttemptID, nil
}
