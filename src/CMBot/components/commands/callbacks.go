package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pavelzar/content-maker/src/CMBot/components/moderation"
	"github.com/pavelzar/content-maker/src/CMBot/components/rewrite"
	"github.com/pavelzar/content-maker/src/shared/store"
)

// Callback tokens are "rw:<message_id>:<style>" for rewrite selection and
// "mod:<action>:<attempt_id>" for moderation actions.

func (h *Handler) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}

	operator := interactionUserID(i)
	if operator == "" {
		return
	}
	if !h.hasOperatorRole(s, operator) {
		respond(s, i, "You don't have permission to do that.")
		return
	}

	ctx := context.Background()
	parts := strings.Split(i.MessageComponentData().CustomID, ":")

	switch parts[0] {
	case "rw":
		if len(parts) != 3 {
			respond(s, i, "Malformed selection.")
			return
		}
		h.callbackRewrite(ctx, s, i, parts[1], parts[2])
	case "mod":
		if len(parts) != 3 {
			respond(s, i, "Malformed action.")
			return
		}
		h.callbackModeration(ctx, s, i, operator, parts[1], parts[2])
	default:
		respond(s, i, "Unknown action.")
	}
}

func (h *Handler) callbackRewrite(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, rawID, style string) {
	msgID, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		respond(s, i, "Malformed selection.")
		return
	}

	// Rewriting blocks on the gateway; acknowledge first.
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		log.Printf("commands: defer rewrite response: %v", err)
		return
	}

	attempt, err := h.config.Rewriter.Rewrite(ctx, msgID, style)
	if err != nil {
		followUp(s, i, h.rewriteErrorText(err))
		return
	}

	_, err = s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: fmt.Sprintf("Rewrite [%s]:\n%s", attempt.Style, snippet(attempt.ResultText, 1500)),
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{Label: "Approve", Style: discordgo.SuccessButton, CustomID: fmt.Sprintf("mod:approve:%d", attempt.ID)},
					discordgo.Button{Label: "Edit", Style: discordgo.PrimaryButton, CustomID: fmt.Sprintf("mod:edit:%d", attempt.ID)},
					discordgo.Button{Label: "Reject", Style: discordgo.DangerButton, CustomID: fmt.Sprintf("mod:reject:%d", attempt.ID)},
				},
			},
		},
	})
	if err != nil {
		log.Printf("commands: send rewrite result: %v", err)
	}
}

func (h *Handler) callbackModeration(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, operator, action, rawID string) {
	attemptID, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		respond(s, i, "Malformed action.")
		return
	}

	switch action {
	case "approve":
		entry, err := h.config.Moderation.Approve(ctx, attemptID)
		if err != nil {
			respond(s, i, h.moderationErrorText("approve", err))
			return
		}
		respond(s, i, fmt.Sprintf("Scheduled for publication at %s.", entry.ScheduledTime.Format(time.RFC3339)))
	case "reject":
		if err := h.config.Moderation.Reject(ctx, attemptID); err != nil {
			respond(s, i, h.moderationErrorText("reject", err))
			return
		}
		respond(s, i, "Rejected.")
	case "edit":
		if err := h.config.Moderation.StartEdit(ctx, operator, attemptID); err != nil {
			respond(s, i, h.moderationErrorText("edit", err))
			return
		}
		respond(s, i, "Send the replacement text as your next message.")
	default:
		respond(s, i, "Unknown action.")
	}
}

func (h *Handler) rewriteErrorText(err error) string {
	switch {
	case errors.Is(err, rewrite.ErrGatewayFailed):
		return fmt.Sprintf("Rewrite failed, the message stays retryable: %v", err)
	case errors.Is(err, rewrite.ErrNotRewritable):
		return "That message has already been picked up."
	case errors.Is(err, store.ErrNotFound):
		return "Message not found."
	default:
		log.Printf("commands: rewrite: %v", err)
		return "Rewrite failed. Please try again."
	}
}

func (h *Handler) moderationErrorText(op string, err error) string {
	switch {
	case errors.Is(err, moderation.ErrInvalidTransition):
		return "That action is not allowed in the current state."
	case errors.Is(err, store.ErrNotFound):
		return "Not found."
	default:
		log.Printf("commands: %s: %v", op, err)
		return fmt.Sprintf("Failed to %s. Please try again.", op)
	}
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
	if err != nil {
		log.Printf("commands: interaction respond: %v", err)
	}
}

func followUp(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if _, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{Content: content}); err != nil {
		log.Printf("commands: follow up: %v", err)
	}
}
