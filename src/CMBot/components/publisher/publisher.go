package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

// ErrPublishFailed marks delivery errors; the schedule entry stays
// scheduled and is retried on the next tick.
var ErrPublishFailed = errors.New("publish failed")

// Unit is a finalized publishable unit: text plus zero-or-one media reference.
type Unit struct {
	Text     string
	MediaRef string
}

// Publisher delivers a unit to the target channel.
type Publisher interface {
	Publish(ctx context.Context, target string, unit Unit) error
}

type Discord struct {
	session *discordgo.Session
	timeout time.Duration
}

func NewDiscord(session *discordgo.Session) *Discord {
	return &Discord{session: session, timeout: 30 * time.Second}
}

func (d *Discord) Publish(ctx context.Context, target string, unit Unit) error {
	if target == "" {
		return fmt.Errorf("%w: no target channel configured", ErrPublishFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var err error
	if unit.MediaRef != "" {
		_, err = d.session.ChannelMessageSendComplex(target, &discordgo.MessageSend{
			Content: unit.Text,
			Embed: &discordgo.MessageEmbed{
				Image: &discordgo.MessageEmbedImage{URL: unit.MediaRef},
			},
		}, discordgo.WithContext(ctx))
	} else {
		_, err = d.session.ChannelMessageSend(target, unit.Text, discordgo.WithContext(ctx))
	}

	if err != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}
	return nil
}
