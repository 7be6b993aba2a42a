package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pavelzar/content-maker/src/CMBot/components/publisher"
	"github.com/pavelzar/content-maker/src/CMBot/config"
	"github.com/pavelzar/content-maker/src/shared/data"
	"github.com/pavelzar/content-maker/src/shared/store"
	"github.com/pavelzar/content-maker/src/shared/types"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

// Scheduler runs the periodic publication tick. Exactly one tick is active
// at a time: if a tick is still running when the next fires, the next is
// skipped, never queued.
type Scheduler struct {
	store    *store.Store
	pub      publisher.Publisher
	rdb      *redis.Client
	interval time.Duration
	cron     *cron.Cron

	// ticking serializes Tick across the cron loop and the startup tick.
	ticking sync.Mutex
}

func New(st *store.Store, pub publisher.Publisher, rdb *redis.Client, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 2 * time.Hour
	}
	return &Scheduler{store: st, pub: pub, rdb: rdb, interval: interval}
}

// Start launches the cron loop and fires one immediate tick.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))

	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, func() {
		if err := s.Tick(ctx, time.Now()); err != nil {
			log.Printf("scheduler: tick: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}

	s.cron.Start()
	log.Printf("scheduler: started, interval %s", s.interval)

	go func() {
		if err := s.Tick(ctx, time.Now()); err != nil {
			log.Printf("scheduler: startup tick: %v", err)
		}
	}()

	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Tick publishes every due schedule entry in order. A delivery failure
// leaves that entry scheduled for the next tick and never aborts the rest
// of the batch. Only one tick runs at a time; a tick that finds another
// still in flight returns without doing anything.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	if !s.ticking.TryLock() {
		log.Printf("scheduler: tick still running, skipping")
		return nil
	}
	defer s.ticking.Unlock()

	due, err := s.store.ListDue(ctx, now)
	if err != nil {
		return fmt.Errorf("list due: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	target, err := s.store.GetConfig(ctx, config.KeyTargetChat)
	if err != nil {
		return fmt.Errorf("read target channel: %w", err)
	}

	batch := uuid.NewString()
	published := 0

	for _, entry := range due {
		dec, err := s.store.GetDecision(ctx, entry.ModerationDecisionID)
		if err != nil {
			log.Printf("scheduler: entry %d references missing decision %d, cancelling: %v",
				entry.ID, entry.ModerationDecisionID, err)
			if err := s.store.CancelSchedule(ctx, entry.ID); err != nil {
				log.Printf("scheduler: cancel entry %d: %v", entry.ID, err)
			}
			continue
		}

		// Published rows must point at an approved decision with text.
		if dec.Status != types.DecisionApproved || dec.FinalText == "" {
			log.Printf("scheduler: entry %d decision %d is %s, cancelling", entry.ID, dec.ID, dec.Status)
			if err := s.store.CancelSchedule(ctx, entry.ID); err != nil {
				log.Printf("scheduler: cancel entry %d: %v", entry.ID, err)
			}
			continue
		}

		unit := publisher.Unit{Text: dec.FinalText, MediaRef: dec.MediaRef}
		if err := s.pub.Publish(ctx, target, unit); err != nil {
			log.Printf("scheduler: entry %d publish failed, will retry next tick: %v", entry.ID, err)
			continue
		}

		// Re-check right before marking: an operator may have cancelled the
		// entry while the publish call was in flight.
		won, err := s.store.MarkPublished(ctx, entry.ID)
		if err != nil {
			log.Printf("scheduler: mark entry %d published: %v", entry.ID, err)
			continue
		}
		if !won {
			continue
		}
		published++

		if s.rdb != nil {
			if err := data.PublishEvent(ctx, s.rdb, map[string]interface{}{
				"batch":       batch,
				"schedule_id": entry.ID,
				"decision_id": dec.ID,
				"time":        now.Unix(),
			}); err != nil {
				log.Printf("scheduler: publish event for entry %d: %v", entry.ID, err)
			}
		}
	}

	log.Printf("scheduler: batch %s published %d of %d due entries", batch, published, len(due))
	return nil
}

// PublishNow sends operator-supplied text straight to the publisher,
// bypassing the pipeline. No schedule row is created.
func (s *Scheduler) PublishNow(ctx context.Context, text string) error {
	target, err := s.store.GetConfig(ctx, config.KeyTargetChat)
	if err != nil {
		return fmt.Errorf("read target channel: %w", err)
	}
	return s.pub.Publish(ctx, target, publisher.Unit{Text: text})
}
