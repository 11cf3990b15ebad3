package session

import (
	"context"
	"sync"
	"time"

	"tahfidh/pkg/models"

	"github.com/rs/zerolog/log"
)

// PollerStore lists the sessions the background poller cares about.
type PollerStore interface {
	ListPolling() ([]models.Session, error)
	ListConnected() ([]models.Session, error)
}

// Poller periodically reconciles local session state with the gateway:
// pairing sessions are polled for progress, connected sessions are health
// checked and downgraded when the gateway lost them.
type Poller struct {
	service  *Service
	store    PollerStore
	interval time.Duration
	mutex    sync.Mutex
	running  bool
	stopChan chan struct{}
}

// NewPoller creates a session status poller
func NewPoller(service *Service, store PollerStore, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Poller{
		service:  service,
		store:    store,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the polling loop
func (p *Poller) Start(ctx context.Context) {
	p.mutex.Lock()
	if p.running {
		p.mutex.Unlock()
		return
	}
	p.running = true
	p.mutex.Unlock()

	log.Info().Dur("interval", p.interval).Msg("session poller started")

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.tick(ctx)

		for {
			select {
			case <-ticker.C:
				p.tick(ctx)
			case <-p.stopChan:
				log.Info().Msg("session poller stopped")
				return
			case <-ctx.Done():
				log.Info().Msg("session poller context cancelled")
				return
			}
		}
	}()
}

// Stop stops the polling loop
func (p *Poller) Stop() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if !p.running {
		return
	}
	p.running = false
	close(p.stopChan)
}

func (p *Poller) tick(ctx context.Context) {
	pairing, err := p.store.ListPolling()
	if err != nil {
		log.Error().Err(err).Msg("failed to list pairing sessions")
	} else {
		p.pollAll(ctx, pairing)
	}

	connected, err := p.store.ListConnected()
	if err != nil {
		log.Error().Err(err).Msg("failed to list connected sessions")
		return
	}
	p.pollAll(ctx, connected)
}

func (p *Poller) pollAll(ctx context.Context, sessions []models.Session) {
	var wg sync.WaitGroup
	for i := range sessions {
		wg.Add(1)
		go func(sess models.Session) {
			defer wg.Done()
			if err := p.service.PollStatus(ctx, &sess); err != nil {
				// Polling failures are transient; the next tick retries.
				log.Warn().Err(err).Str("instance", sess.Name).Msg("session poll failed")
			}
		}(sessions[i])
	}
	wg.Wait()
}
