package ingest

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/pavelzar/content-maker/src/shared/store"
	"github.com/pavelzar/content-maker/src/shared/types"
)

// Source fetches the public message wall of a channel as a parsed document.
type Source interface {
	Fetch(ctx context.Context, source string) (*goquery.Document, error)
}

// WebSource pulls the t.me/s/<name> preview page.
type WebSource struct {
	client  *http.Client
	baseURL string
}

var _ Source = (*WebSource)(nil)

func NewWebSource(client *http.Client) *WebSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &WebSource{client: client, baseURL: "https://t.me/s"}
}

func (w *WebSource) Fetch(ctx context.Context, source string) (*goquery.Document, error) {
	name := strings.TrimPrefix(source, "@")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/"+name, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: %s", source, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", source, err)
	}
	return doc, nil
}

// Scanner ingests raw channel posts into the store as status=new rows.
type Scanner struct {
	store     *store.Store
	source    Source
	sanitizer *bluemonday.Policy
}

func NewScanner(st *store.Store, source Source) *Scanner {
	return &Scanner{
		store:     st,
		source:    source,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// ScanBlock ingests every channel under the block, keeping posts newer than
// the window. A failing channel is logged and skipped; the scan continues.
// Returns the number of newly inserted messages.
func (s *Scanner) ScanBlock(ctx context.Context, blockID uint64, window time.Duration) (int, error) {
	channels, err := s.store.ListChannels(ctx, blockID)
	if err != nil {
		return 0, fmt.Errorf("list channels: %w", err)
	}

	cutoff := time.Now().Add(-window)
	total := 0
	for _, ch := range channels {
		n, err := s.scanChannel(ctx, ch, cutoff)
		if err != nil {
			log.Printf("ingest: channel %s: %v", ch.Source, err)
			continue
		}
		total += n
	}
	return total, nil
}

func (s *Scanner) scanChannel(ctx context.Context, ch types.Channel, cutoff time.Time) (int, error) {
	doc, err := s.source.Fetch(ctx, ch.Source)
	if err != nil {
		return 0, err
	}

	inserted := 0
	var insertErr error
	doc.Find(".tgme_widget_message").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		msg, ok := s.parsePost(sel, ch)
		if !ok || msg.OriginTime.Before(cutoff) {
			return true
		}

		fresh, err := s.store.InsertMessage(ctx, msg)
		if err != nil {
			insertErr = err
			return false
		}
		if fresh {
			inserted++
		}
		return true
	})
	if insertErr != nil {
		return inserted, insertErr
	}
	return inserted, nil
}

// parsePost extracts one post from the message wall markup. Posts without
// text or a parseable identity are skipped.
func (s *Scanner) parsePost(sel *goquery.Selection, ch types.Channel) (*types.Message, bool) {
	post, ok := sel.Attr("data-post")
	if !ok {
		return nil, false
	}
	parts := strings.Split(post, "/")
	srcID, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	if err != nil {
		return nil, false
	}

	raw, err := sel.Find(".tgme_widget_message_text").Html()
	if err != nil {
		return nil, false
	}
	text := strings.TrimSpace(s.sanitizer.Sanitize(strings.ReplaceAll(raw, "<br/>", "\n")))
	if text == "" {
		return nil, false
	}

	origin := time.Now()
	if raw, ok := sel.Find(".tgme_widget_message_date time").Attr("datetime"); ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			origin = t
		}
	}

	return &types.Message{
		ChannelID:       ch.ID,
		SourceMessageID: srcID,
		Content:         text,
		ContentHash:     int64(xxhash.Checksum64([]byte(text))),
		OriginTime:      origin,
		Status:          types.MessageNew,
	}, true
}
