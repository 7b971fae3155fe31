package scheduler

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/abbasshaikh29/TribeLab/internal/pkg/billing"
	"github.com/abbasshaikh29/TribeLab/internal/pkg/cache"
	"github.com/abbasshaikh29/TribeLab/internal/pkg/database"
	"github.com/abbasshaikh29/TribeLab/internal/pkg/env"
	"github.com/abbasshaikh29/TribeLab/internal/pkg/notify"
	"github.com/gofiber/fiber/v2/log"
)

// RunLockKey guards against overlapping maintenance runs, whether triggered
// by this manager's ticker or the external cron endpoint.
const RunLockKey = "maintenance:running"

// RunLockTTL caps how long a crashed run can hold the lock.
const RunLockTTL = 10 * time.Minute

// Manager runs the maintenance job on a fixed in-process cadence.
type Manager struct {
	ticker  *time.Ticker
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global scheduler manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = &Manager{
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// Start starts the maintenance ticker.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so the manager can be
	// restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true

	interval := 60 * time.Minute // Default fallback
	if v, err := strconv.Atoi(env.GetEnv("MAINTENANCE_INTERVAL_MINUTES", "")); err == nil && v > 0 {
		interval = time.Duration(v) * time.Minute
	}

	log.Infof("[Scheduler] Starting maintenance worker, interval %v", interval)
	m.ticker = time.NewTicker(interval)
	m.wg.Add(1)
	go m.maintenanceWorker()
}

// Stop stops the ticker and waits for an in-flight run to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.running = false
	close(m.stopCh)
	if m.ticker != nil {
		m.ticker.Stop()
	}
	m.wg.Wait()
	log.Info("[Scheduler] Maintenance worker stopped")
}

func (m *Manager) maintenanceWorker() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ticker.C:
			RunMaintenance()
		case <-m.stopCh:
			return
		}
	}
}

// RunMaintenance executes one maintenance run under the advisory Redis lock.
// Returns the result, or nil when another run already holds the lock.
func RunMaintenance() *billing.MaintenanceResult {
	acquired, err := cache.SetNX(RunLockKey, time.Now().Unix(), RunLockTTL)
	if err != nil {
		// Cache down: run anyway, the passes themselves are idempotent.
		log.Warnf("[Scheduler] Run lock unavailable, proceeding without it: %v", err)
	} else if !acquired {
		log.Info("[Scheduler] Maintenance already running, skipping this trigger")
		return nil
	}
	if err == nil && acquired {
		defer func() {
			if derr := cache.Delete(RunLockKey); derr != nil {
				log.Warnf("[Scheduler] Releasing run lock: %v", derr)
			}
		}()
	}

	db := database.GetDB()
	svc := billing.NewMaintenanceServiceFromDB(db, notify.NewDispatcher(billing.NewRepository(db)))
	return svc.Run(context.Background())
}
