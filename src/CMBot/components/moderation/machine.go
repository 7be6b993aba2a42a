package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pavelzar/content-maker/src/shared/store"
	"github.com/pavelzar/content-maker/src/shared/types"
)

// ErrInvalidTransition reports a moderation action that is not legal from
// the current decision state. Nothing is changed when it is returned.
var ErrInvalidTransition = errors.New("invalid moderation transition")

// Machine drives a rewrite candidate through the operator decision points:
// approve, edit, attach media, reject. All state lives in the store so an
// interrupted conversation resumes after a restart.
type Machine struct {
	store *store.Store
	delay time.Duration
}

func NewMachine(st *store.Store, publishDelay time.Duration) *Machine {
	if publishDelay <= 0 {
		publishDelay = time.Minute
	}
	return &Machine{store: st, delay: publishDelay}
}

func (m *Machine) attemptForModeration(ctx context.Context, attemptID uint64) (*types.RewriteAttempt, error) {
	attempt, err := m.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != types.AttemptDone {
		return nil, fmt.Errorf("attempt %d is %s: %w", attemptID, attempt.Status, ErrInvalidTransition)
	}
	return attempt, nil
}

// Approve moves the attempt's decision to approved and atomically creates
// a publication schedule entry at now + the configured delay. Valid from
// the pre-state (no decision yet) and from pending_edit, in which case the
// currently recorded final text is used as-is.
func (m *Machine) Approve(ctx context.Context, attemptID uint64) (*types.PublicationSchedule, error) {
	attempt, err := m.attemptForModeration(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	entry := &types.PublicationSchedule{
		ScheduledTime: time.Now().Add(m.delay),
		Status:        types.ScheduleScheduled,
	}

	// The decision guard runs inside the transaction so two concurrent
	// approvals of the same attempt cannot both pass it.
	err = m.store.Transaction(ctx, func(tx *store.Store) error {
		dec, err := tx.LatestDecision(ctx, attemptID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			dec = &types.ModerationDecision{
				RewriteAttemptID: attemptID,
				FinalText:        attempt.ResultText,
			}
		case err != nil:
			return err
		case dec.Status == types.DecisionPendingEdit:
			if dec.FinalText == "" {
				dec.FinalText = attempt.ResultText
			}
		default:
			return fmt.Errorf("attempt %d decision is %s: %w", attemptID, dec.Status, ErrInvalidTransition)
		}

		dec.Status = types.DecisionApproved
		if err := tx.SaveDecision(ctx, dec); err != nil {
			return err
		}
		entry.ModerationDecisionID = dec.ID
		return tx.CreateSchedule(ctx, entry)
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return nil, err
		}
		return nil, fmt.Errorf("approve attempt %d: %w", attemptID, err)
	}

	return entry, nil
}

// Reject moves the decision to rejected, cancels any still-scheduled
// publication entries so a later tick will not publish them, and retires
// the source message to discarded.
func (m *Machine) Reject(ctx context.Context, attemptID uint64) error {
	attempt, err := m.attemptForModeration(ctx, attemptID)
	if err != nil {
		return err
	}

	return m.store.Transaction(ctx, func(tx *store.Store) error {
		dec, err := tx.LatestDecision(ctx, attemptID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			dec = &types.ModerationDecision{RewriteAttemptID: attemptID}
		case err != nil:
			return err
		case dec.Status == types.DecisionRejected:
			return fmt.Errorf("attempt %d already rejected: %w", attemptID, ErrInvalidTransition)
		}

		dec.Status = types.DecisionRejected
		if err := tx.SaveDecision(ctx, dec); err != nil {
			return err
		}
		if err := tx.CancelForDecision(ctx, dec.ID); err != nil {
			return err
		}
		err = tx.AdvanceMessage(ctx, attempt.MessageID, types.MessageInReview, types.MessageDiscarded)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return nil
	})
}

// BeginEdit opens a pending_edit decision capturing the operator's
// replacement text. Valid only from the pre-state; the edited content
// still needs an explicit Approve or Reject afterwards.
func (m *Machine) BeginEdit(ctx context.Context, attemptID uint64, text string) (*types.ModerationDecision, error) {
	if text == "" {
		return nil, fmt.Errorf("replacement text must not be empty")
	}
	if _, err := m.attemptForModeration(ctx, attemptID); err != nil {
		return nil, err
	}

	dec := &types.ModerationDecision{
		RewriteAttemptID: attemptID,
		FinalText:        text,
		Status:           types.DecisionPendingEdit,
	}
	err := m.store.Transaction(ctx, func(tx *store.Store) error {
		if prev, err := tx.LatestDecision(ctx, attemptID); err == nil {
			return fmt.Errorf("attempt %d decision is %s: %w", attemptID, prev.Status, ErrInvalidTransition)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return tx.CreateDecision(ctx, dec)
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return nil, err
		}
		return nil, fmt.Errorf("begin edit: %w", err)
	}
	return dec, nil
}

// AttachMedia records a media reference on an in-progress edit. One media
// item at most; the edit stays pending_edit awaiting Approve/Reject.
func (m *Machine) AttachMedia(ctx context.Context, decisionID uint64, mediaRef string) (*types.ModerationDecision, error) {
	if mediaRef == "" {
		return nil, fmt.Errorf("media reference must not be empty")
	}

	dec, err := m.store.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if dec.Status != types.DecisionPendingEdit {
		return nil, fmt.Errorf("decision %d is %s: %w", decisionID, dec.Status, ErrInvalidTransition)
	}
	if dec.MediaRef != "" {
		return nil, fmt.Errorf("decision %d already has media: %w", decisionID, ErrInvalidTransition)
	}

	dec.MediaRef = mediaRef
	if err := m.store.SaveDecision(ctx, dec); err != nil {
		return nil, fmt.Errorf("attach media: %w", err)
	}
	return dec, nil
}

// FinalizeEdit is the explicit "no more media" signal. The decision stays
// pending_edit; it only validates that finalizing is legal right now.
func (m *Machine) FinalizeEdit(ctx context.Context, decisionID uint64) (*types.ModerationDecision, error) {
	dec, err := m.store.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if dec.Status != types.DecisionPendingEdit {
		return nil, fmt.Errorf("decision %d is %s: %w", decisionID, dec.Status, ErrInvalidTransition)
	}
	return dec, nil
}
