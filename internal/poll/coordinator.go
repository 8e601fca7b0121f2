package poll

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joshp123/bluedoor/internal/fermax"
	"github.com/joshp123/bluedoor/internal/session"
)

const (
	DefaultInterval = 15 * time.Minute
	DefaultTimeout  = 2 * time.Minute
)

// TokenRenewer proactively keeps the session credential fresh,
// independent of any pending command.
type TokenRenewer interface {
	EnsureValid(ctx context.Context) (session.Credentials, error)
}

// Discoverer enumerates the account's homes and doors.
type Discoverer interface {
	Pairings(ctx context.Context) ([]fermax.Home, error)
}

// Snapshot is the current discovered home/door set. It is replaced
// wholesale on each successful tick and read-only for callers.
type Snapshot struct {
	Homes     []fermax.Home `json:"homes"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Door resolves a door by its (home, door) identity.
func (s Snapshot) Door(homeID, doorID string) (fermax.Door, bool) {
	for _, home := range s.Homes {
		if home.ID != homeID {
			continue
		}
		for _, door := range home.Doors {
			if door.ID == doorID {
				return door, true
			}
		}
	}
	return fermax.Door{}, false
}

func (s Snapshot) doorCount() int {
	count := 0
	for _, home := range s.Homes {
		count += len(home.Doors)
	}
	return count
}

// Coordinator drives proactive token renewal and device discovery on
// a fixed cadence. A failed tick keeps the previous snapshot: the
// host cannot rediscover entities it already registered without user
// disruption, so one bad poll must never clear known doors.
type Coordinator struct {
	tokens   TokenRenewer
	devices  Discoverer
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	running atomic.Bool

	mu       sync.RWMutex
	snapshot Snapshot
}

func NewCoordinator(tokens TokenRenewer, devices Discoverer, interval time.Duration, logger *slog.Logger) *Coordinator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		tokens:   tokens,
		devices:  devices,
		interval: interval,
		timeout:  DefaultTimeout,
		logger:   logger.With("component", "poll"),
	}
}

// Start runs one immediate tick and then keeps ticking on the
// configured interval until ctx is cancelled.
func (c *Coordinator) Start(ctx context.Context) {
	if err := c.Tick(ctx); err != nil {
		c.logger.Warn("initial tick failed", "err", err)
	}
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.Tick(ctx); err != nil {
					c.logger.Warn("tick failed, keeping previous snapshot", "err", err)
				}
			}
		}
	}()
}

// Tick renews the token and replaces the snapshot atomically. Ticks
// never overlap; one arriving while another runs is skipped, not
// queued.
func (c *Coordinator) Tick(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		tickSkipped.Inc()
		return nil
	}
	defer c.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.tokens.EnsureValid(ctx); err != nil {
		tickFailure.Inc()
		return fmt.Errorf("renew token: %w", err)
	}

	homes, err := c.devices.Pairings(ctx)
	if err != nil {
		tickFailure.Inc()
		return fmt.Errorf("discover devices: %w", err)
	}

	snapshot := Snapshot{Homes: homes, UpdatedAt: time.Now()}
	c.mu.Lock()
	c.snapshot = snapshot
	c.mu.Unlock()

	tickSuccess.Inc()
	lastSuccess.Set(float64(snapshot.UpdatedAt.Unix()))
	doorsDiscovered.Set(float64(snapshot.doorCount()))
	c.logger.Debug("snapshot replaced", "homes", len(homes), "doors", snapshot.doorCount())
	return nil
}

// Snapshot returns the current home/door set. Callers must treat it
// as immutable.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}
