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
	"github.com/pavelzar/content-maker/src/CMBot/components/ingest"
	"github.com/pavelzar/content-maker/src/CMBot/components/moderation"
	"github.com/pavelzar/content-maker/src/CMBot/components/rewrite"
	"github.com/pavelzar/content-maker/src/CMBot/components/scheduler"
	"github.com/pavelzar/content-maker/src/CMBot/config"
	"github.com/pavelzar/content-maker/src/shared/store"
	"github.com/pavelzar/content-maker/src/shared/types"
)

const prefix = "!"

// maxReviewButtons caps how many pending messages one !review reply offers.
const maxReviewButtons = 10

type Config struct {
	Store          *store.Store
	Scanner        *ingest.Scanner
	Rewriter       *rewrite.Orchestrator
	Moderation     *moderation.Machine
	Scheduler      *scheduler.Scheduler
	GuildID        string
	OperatorRoleID string
	Styles         []string
}

type handlerFunc func(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string)

// Handler is the operator command surface. Dispatch runs off a static
// name-to-handler table; unknown commands get a usage reply and change
// nothing.
type Handler struct {
	config      Config
	rateLimiter *RateLimiter
	table       map[string]handlerFunc
}

func NewHandler(cfg Config) *Handler {
	h := &Handler{
		config:      cfg,
		rateLimiter: NewRateLimiter(30 * time.Second),
	}
	h.table = map[string]handlerFunc{
		"setchannel":    h.cmdSetChannel,
		"getchannel":    h.cmdGetChannel,
		"setstyle":      h.cmdSetStyle,
		"addblock":      h.cmdAddBlock,
		"blocks":        h.cmdListBlocks,
		"removeblock":   h.cmdRemoveBlock,
		"addchannel":    h.cmdAddChannel,
		"channels":      h.cmdListChannels,
		"removechannel": h.cmdRemoveChannel,
		"scan":          h.cmdScan,
		"review":        h.cmdReview,
		"postnow":       h.cmdPostNow,
		"schedule":      h.cmdSchedule,
		"skipmedia":     h.cmdSkipMedia,
	}
	return h
}

func (h *Handler) HandleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID {
		return
	}

	ctx := context.Background()

	if !strings.HasPrefix(m.Content, prefix) {
		h.routeToEditSession(ctx, s, m)
		return
	}

	if !h.hasOperatorRole(s, m.Author.ID) {
		s.ChannelMessageSend(m.ChannelID, "You don't have permission to use this command.")
		return
	}

	fields := strings.Fields(m.Content)
	name := strings.ToLower(strings.TrimPrefix(fields[0], prefix))

	handler, ok := h.table[name]
	if !ok {
		s.ChannelMessageSend(m.ChannelID, "Unknown command. Available: setchannel, getchannel, setstyle, addblock, blocks, removeblock, addchannel, channels, removechannel, scan, review, postnow, schedule, skipmedia")
		return
	}

	handler(ctx, s, m, fields[1:])
}

// skipmedia is a command but belongs to an open edit conversation;
// everything else free-form is routed here.
func (h *Handler) routeToEditSession(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	sess, err := h.config.Moderation.OpenSession(ctx, m.Author.ID)
	if errors.Is(err, moderation.ErrNoSession) {
		return
	}
	if err != nil {
		log.Printf("commands: open session for %s: %v", m.Author.ID, err)
		return
	}

	switch sess.Stage {
	case types.EditAwaitingText:
		text := strings.TrimSpace(m.Content)
		if text == "" {
			s.ChannelMessageSend(m.ChannelID, "Send the replacement text as a plain message.")
			return
		}
		if _, err := h.config.Moderation.SubmitText(ctx, m.Author.ID, text); err != nil {
			h.reportError(s, m.ChannelID, "record text", err)
			return
		}
		s.ChannelMessageSend(m.ChannelID, "Text recorded. Attach one image, or use !skipmedia to continue without media.")

	case types.EditAwaitingMedia:
		if len(m.Attachments) == 0 {
			s.ChannelMessageSend(m.ChannelID, "Attach an image, or use !skipmedia.")
			return
		}
		dec, err := h.config.Moderation.SubmitMedia(ctx, m.Author.ID, m.Attachments[0].URL)
		if err != nil {
			h.reportError(s, m.ChannelID, "attach media", err)
			return
		}
		h.sendDecisionPrompt(s, m.ChannelID, dec)
	}
}

func (h *Handler) cmdSetChannel(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if len(args) != 1 {
		s.ChannelMessageSend(m.ChannelID, "Usage: !setchannel <channel_id>")
		return
	}
	if err := h.config.Store.SetConfig(ctx, config.KeyTargetChat, args[0]); err != nil {
		h.reportError(s, m.ChannelID, "set channel", err)
		return
	}
	s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("Publication channel set to %s", args[0]))
}

func (h *Handler) cmdGetChannel(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, _ []string) {
	target, err := h.config.Store.GetConfig(ctx, config.KeyTargetChat)
	if err != nil {
		h.reportError(s, m.ChannelID, "read config", err)
		return
	}
	style, err := h.config.Store.GetConfig(ctx, config.KeyDefaultStyle)
	if err != nil {
		h.reportError(s, m.ChannelID, "read config", err)
		return
	}
	if target == "" {
		target = "not set"
	}
	if style == "" {
		style = h.defaultStyle()
	}
	s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("Publication channel: %s\nRewrite style: %s", target, style))
}

func (h *Handler) cmdSetStyle(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	choices := strings.Join(h.config.Styles, ", ")
	if len(args) != 1 || !h.hasStyle(args[0]) {
		s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("Usage: !setstyle <style>\nAvailable styles: %s", choices))
		return
	}
	if err := h.config.Store.SetConfig(ctx, config.KeyDefaultStyle, args[0]); err != nil {
		h.reportError(s, m.ChannelID, "set style", err)
		return
	}
	s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("Rewrite style set to %s", args[0]))
}

func (h *Handler) cmdAddBlock(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	title := strings.TrimSpace(strings.Join(args, " "))
	if title == "" {
		s.ChannelMessageSend(m.ChannelID, "Usage: !addblock <title>")
		return
	}
	block, err := h.config.Store.CreateBlock(ctx, title)
	if err != nil {
		h.reportError(s, m.ChannelID, "create block", err)
		return
	}
	s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("Created block %q (id=%d)", block.Title, block.ID))
}

func (h *Handler) cmdListBlocks(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, _ []string) {
	blocks, err := h.config.Store.ListBlocks(ctx)
	if err != nil {
		h.reportError(s, m.ChannelID, "list blocks", err)
		return
	}
	if len(blocks) == 0 {
		s.ChannelMessageSend(m.ChannelID, "No blocks yet.")
		return
	}
	var sb strings.Builder
	sb.WriteString("Blocks:\n")
	for _, b := range blocks {
		fmt.Fprintf(&sb, "%d: %s\n", b.ID, b.Title)
	}
	s.ChannelMessageSend(m.ChannelID, sb.String())
}

func (h *Handler) cmdRemoveBlock(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	id, ok := parseID(args, 0)
	if !ok {
		s.ChannelMessageSend(m.ChannelID, "Usage: !removeblock <block_id>")
		return
	}
	if err := h.config.Store.DeleteBlock(ctx, id); err != nil {
		h.reportError(s, m.ChannelID, "remove block", err)
		return
	}
	s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("Removed block %d and its channels", id))
}

func (h *Handler) cmdAddChannel(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	id, ok := parseID(args, 0)
	if !ok || len(args) != 2 {
		s.ChannelMessageSend(m.ChannelID, "Usage: !addchannel <block_id> <source>")
		return
	}
	ch, err := h.config.Store.AddChannel(ctx, id, args[1])
	if err != nil {
		h.reportError(s, m.ChannelID, "add channel", err)
		return
	}
	s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("Added channel %s to block %d (id=%d)", ch.Source, id, ch.ID))
}

func (h *Handler) cmdListChannels(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	id, ok := parseID(args, 0)
	if !ok {
		s.ChannelMessageSend(m.ChannelID, "Usage: !channels <block_id>")
		return
	}
	channels, err := h.config.Store.ListChannels(ctx, id)
	if err != nil {
		h.reportError(s, m.ChannelID, "list channels", err)
		return
	}
	if len(channels) == 0 {
		s.ChannelMessageSend(m.ChannelID, "No channels in this block.")
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Channels in block %d:\n", id)
	for _, c := range channels {
		fmt.Fprintf(&sb, "%d: %s\n", c.ID, c.Source)
	}
	s.ChannelMessageSend(m.ChannelID, sb.String())
}

func (h *Handler) cmdRemoveChannel(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	id, ok := parseID(args, 0)
	if !ok || len(args) != 2 {
		s.ChannelMessageSend(m.ChannelID, "Usage: !removechannel <block_id> <source>")
		return
	}
	if err := h.config.Store.RemoveChannel(ctx, id, args[1]); err != nil {
		h.reportError(s, m.ChannelID, "remove channel", err)
		return
	}
	s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("Removed channel %s from block %d", args[1], id))
}

func (h *Handler) cmdScan(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	id, ok := parseID(args, 0)
	hours, err := strconv.Atoi(argAt(args, 1))
	if !ok || err != nil || hours <= 0 {
		s.ChannelMessageSend(m.ChannelID, "Usage: !scan <block_id> <hours>")
		return
	}
	if !h.allowExpensive(s, m) {
		return
	}

	n, err := h.config.Scanner.ScanBlock(ctx, id, time.Duration(hours)*time.Hour)
	if err != nil {
		h.reportError(s, m.ChannelID, "scan", err)
		return
	}
	s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("Collected %d new messages", n))
}

func (h *Handler) cmdReview(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	id, ok := parseID(args, 0)
	if !ok {
		s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("Usage: !review <block_id> [style]\nStyles: %s", strings.Join(h.config.Styles, ", ")))
		return
	}
	if !h.allowExpensive(s, m) {
		return
	}

	style := argAt(args, 1)
	if !h.hasStyle(style) {
		configured, err := h.config.Store.GetConfig(ctx, config.KeyDefaultStyle)
		if err != nil {
			h.reportError(s, m.ChannelID, "read config", err)
			return
		}
		style = configured
		if !h.hasStyle(style) {
			style = h.defaultStyle()
		}
	}

	msgs, err := h.config.Store.ListPending(ctx, id)
	if err != nil {
		h.reportError(s, m.ChannelID, "list pending", err)
		return
	}
	if len(msgs) == 0 {
		s.ChannelMessageSend(m.ChannelID, "No new messages in this block.")
		return
	}
	if len(msgs) > maxReviewButtons {
		msgs = msgs[:maxReviewButtons]
	}

	var rows []discordgo.MessageComponent
	for _, msg := range msgs {
		rows = append(rows, discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    fmt.Sprintf("[%s] %s", style, snippet(msg.Content, 60)),
					Style:    discordgo.SecondaryButton,
					CustomID: fmt.Sprintf("rw:%d:%s", msg.ID, style),
				},
			},
		})
	}

	_, err = s.ChannelMessageSendComplex(m.ChannelID, &discordgo.MessageSend{
		Content:    "Pick a message to rewrite:",
		Components: rows,
	})
	if err != nil {
		log.Printf("commands: send review list: %v", err)
	}
}

func (h *Handler) cmdPostNow(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		s.ChannelMessageSend(m.ChannelID, "Usage: !postnow <text>")
		return
	}
	if err := h.config.Scheduler.PublishNow(ctx, text); err != nil {
		h.reportError(s, m.ChannelID, "publish", err)
		return
	}
	s.ChannelMessageSend(m.ChannelID, "Published.")
}

func (h *Handler) cmdSchedule(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, _ []string) {
	entries, err := h.config.Store.ListScheduled(ctx)
	if err != nil {
		h.reportError(s, m.ChannelID, "list schedule", err)
		return
	}
	if len(entries) == 0 {
		s.ChannelMessageSend(m.ChannelID, "Schedule is empty.")
		return
	}
	var sb strings.Builder
	sb.WriteString("Scheduled publications:\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "%d: decision %d at %s\n", e.ID, e.ModerationDecisionID, e.ScheduledTime.Format(time.RFC3339))
	}
	s.ChannelMessageSend(m.ChannelID, sb.String())
}

func (h *Handler) cmdSkipMedia(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, _ []string) {
	dec, err := h.config.Moderation.SkipMedia(ctx, m.Author.ID)
	if err != nil {
		h.reportError(s, m.ChannelID, "skip media", err)
		return
	}
	h.sendDecisionPrompt(s, m.ChannelID, dec)
}

// sendDecisionPrompt offers the terminal choices for an edited decision.
func (h *Handler) sendDecisionPrompt(s *discordgo.Session, channelID string, dec *types.ModerationDecision) {
	_, err := s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: fmt.Sprintf("Edited text:\n%s", snippet(dec.FinalText, 1500)),
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{Label: "Approve", Style: discordgo.SuccessButton, CustomID: fmt.Sprintf("mod:approve:%d", dec.RewriteAttemptID)},
					discordgo.Button{Label: "Reject", Style: discordgo.DangerButton, CustomID: fmt.Sprintf("mod:reject:%d", dec.RewriteAttemptID)},
				},
			},
		},
	})
	if err != nil {
		log.Printf("commands: send decision prompt: %v", err)
	}
}

func (h *Handler) allowExpensive(s *discordgo.Session, m *discordgo.MessageCreate) bool {
	if h.rateLimiter.CanUse(m.Author.ID) {
		return true
	}
	timeLeft := h.rateLimiter.TimeUntilNext(m.Author.ID)
	s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("Please wait %d seconds before using this command again.", int(timeLeft.Seconds())+1))
	return false
}

func (h *Handler) hasOperatorRole(s *discordgo.Session, userID string) bool {
	if h.config.OperatorRoleID == "" {
		return true
	}
	member, err := s.GuildMember(h.config.GuildID, userID)
	if err != nil {
		log.Printf("commands: get guild member %s: %v", userID, err)
		return false
	}
	for _, role := range member.Roles {
		if role == h.config.OperatorRoleID {
			return true
		}
	}
	return false
}

func (h *Handler) reportError(s *discordgo.Session, channelID, op string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.ChannelMessageSend(channelID, "Not found.")
	case errors.Is(err, moderation.ErrInvalidTransition):
		s.ChannelMessageSend(channelID, "That action is not allowed in the current state.")
	case errors.Is(err, moderation.ErrNoSession):
		s.ChannelMessageSend(channelID, "No edit in progress.")
	default:
		log.Printf("commands: %s: %v", op, err)
		s.ChannelMessageSend(channelID, fmt.Sprintf("Failed to %s. Please try again.", op))
	}
}

func (h *Handler) hasStyle(style string) bool {
	if style == "" {
		return false
	}
	for _, v := range h.config.Styles {
		if v == style {
			return true
		}
	}
	return false
}

func (h *Handler) defaultStyle() string {
	if len(h.config.Styles) > 0 {
		return h.config.Styles[0]
	}
	return "default"
}

func parseID(args []string, idx int) (uint64, bool) {
	raw := argAt(args, idx)
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func argAt(args []string, idx int) string {
	if idx >= len(args) {
		return ""
	}
	return args[idx]
}

func snippet(text string, max int) string {
	text = strings.ReplaceAll(text, "\n", " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
