package db

import (
	"context"
	"sync"

	"github.com/banshee-data/gyrohook/internal/ingest"
	"github.com/banshee-data/gyrohook/internal/monitoring"
)

const journalQueue = 256

// Journal records applied updates in the background so connection handlers
// never wait on SQLite. It implements ingest.Observer.
type Journal struct {
	db      *DB
	updates chan ingest.Update

	mu      sync.Mutex
	dropped int
}

// NewJournal creates a Journal writing to db. Call Run to start it.
func NewJournal(db *DB) *Journal {
	return &Journal{db: db, updates: make(chan ingest.Update, journalQueue)}
}

// ProfileApplied queues u. When the queue is full the update is dropped
// from the journal and counted.
func (j *Journal) ProfileApplied(u ingest.Update) {
	select {
	case j.updates <- u:
	default:
		j.mu.Lock()
		j.dropped++
		j.mu.Unlock()
		monitoring.Warnf("journal: queue full, dropped update %s", u.ID)
	}
}

// Dropped reports how many updates never reached the journal.
func (j *Journal) Dropped() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

// Run writes queued updates until ctx is done, then drains what is already
// queued before returning.
func (j *Journal) Run(ctx context.Context) {
	for {
		select {
		case u := <-j.updates:
			j.record(u)
		case <-ctx.Done():
			for {
				select {
				case u := <-j.updates:
					j.record(u)
				default:
					return
				}
			}
		}
	}
}

func (j *Journal) record(u ingest.Update) {
	if err := j.db.RecordProfileUpdate(context.Background(), u); err != nil {
		monitoring.Errorf("journal: %v", err)
	}
}
