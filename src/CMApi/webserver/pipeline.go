package webserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pavelzar/content-maker/src/shared/store"
)

// Pipeline serves read-only views over the content pipeline state.
type Pipeline struct {
	store *store.Store
}

func NewPipeline(st *store.Store) Pipeline {
	return Pipeline{store: st}
}

func (p Pipeline) Schedule(c *gin.Context) {
	entries, err := p.store.ListScheduled(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": "failed to load schedule"})
		return
	}

	out := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		item := gin.H{
			"id":            e.ID,
			"decisionId":    e.ModerationDecisionID,
			"scheduledTime": e.ScheduledTime.Format(time.RFC3339),
		}
		if dec, err := p.store.GetDecision(c.Request.Context(), e.ModerationDecisionID); err == nil {
			item["text"] = dec.FinalText
			item["hasMedia"] = dec.MediaRef != ""
		}
		out = append(out, item)
	}

	c.JSON(http.StatusOK, gin.H{"scheduled": out})
}

func (p Pipeline) Blocks(c *gin.Context) {
	blocks, err := p.store.ListBlocks(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": "failed to load blocks"})
		return
	}

	out := make([]gin.H, 0, len(blocks))
	for _, b := range blocks {
		channels, err := p.store.ListChannels(c.Request.Context(), b.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"err": "failed to load channels"})
			return
		}
		sources := make([]string, 0, len(channels))
		for _, ch := range channels {
			sources = append(sources, ch.Source)
		}
		out = append(out, gin.H{"id": b.ID, "title": b.Title, "channels": sources})
	}

	c.JSON(http.StatusOK, gin.H{"blocks": out})
}

func (p Pipeline) Pending(c *gin.Context) {
	blockID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || blockID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid block id"})
		return
	}

	msgs, err := p.store.ListPending(c.Request.Context(), blockID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": "failed to load pending messages"})
		return
	}

	out := make([]gin.H, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, gin.H{
			"id":         m.ID,
			"channelId":  m.ChannelID,
			"content":    m.Content,
			"originTime": m.OriginTime.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{"pending": out})
}
