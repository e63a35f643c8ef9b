package attach

import (
	"context"
	"log"
	"time"

	"github.com/paperhub/course-chat/internal/database"
	"github.com/paperhub/course-chat/internal/storage"
)

const (
	defaultSweepInterval = 10 * time.Minute
	defaultStagedTTL     = time.Hour
)

// Sweeper reclaims staged attachments that were uploaded but never
// linked to a message, deleting both the row and the stored blob.
type Sweeper struct {
	log      *log.Logger
	db       database.CourseChatRepository
	store    storage.ObjectStore
	interval time.Duration
	ttl      time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewSweeper(logger *log.Logger, db database.CourseChatRepository, store storage.ObjectStore) *Sweeper {
	return &Sweeper{
		log:      logger,
		db:       db,
		store:    store,
		interval: defaultSweepInterval,
		ttl:      defaultStagedTTL,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Sweeper) Run() {
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stop:
				return
			}
		}
	}()
}

func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Sweeper) sweep() {
	expired, err := s.db.DeleteExpiredAttachments(time.Now().UTC().Add(-s.ttl))
	if err != nil {
		s.log.Println("sweep expired attachments:", err)
		return
	}

	if len(expired) == 0 {
		return
	}

	s.log.Printf("sweeping %d unlinked attachments", len(expired))
	for _, att := range expired {
		ctx, cancel := context.WithTimeout(context.Background(), defaultStorageTimeout)
		if err := s.store.Delete(ctx, att.ObjectKey); err != nil {
			s.log.Printf("delete blob %q: %v", att.ObjectKey, err)
		}
		cancel()
	}
}
