package jobqueue

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/hirewireapp/hirewire/internal/pkg/archive"
	"github.com/hirewireapp/hirewire/internal/pkg/creditguard"
	"github.com/hirewireapp/hirewire/internal/pkg/env"
)

// Manager owns the job queue and the periodic background tasks.
type Manager struct {
	queue           *Queue
	reconcileTicker *time.Ticker
	stopCh          chan struct{}
	wg              sync.WaitGroup
	mu              sync.Mutex
	running         bool
}

// NewManager creates a manager with the standard processors registered.
// uploader may be nil when report archiving is disabled.
func NewManager(client *redis.Client, db *gorm.DB, guard *creditguard.Guard, uploader archive.Uploader) *Manager {
	workers := 5
	if v, err := strconv.Atoi(env.GetEnv("JOB_QUEUE_WORKERS", "5")); err == nil && v > 0 {
		workers = v
	}

	queue := NewQueue(client, workers)
	queue.Register(JobTypeResumeProcessing, NewResumeProcessor(db, guard).Handle)
	queue.Register(JobTypeLedgerReconcile, NewReconcileProcessor(db, uploader).Handle)

	return &Manager{
		queue:  queue,
		stopCh: make(chan struct{}),
	}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
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
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	reconcileInterval := 24 * time.Hour
	if v, err := strconv.Atoi(env.GetEnv("LEDGER_RECONCILE_INTERVAL_HOURS", "24")); err == nil && v > 0 {
		reconcileInterval = time.Duration(v) * time.Hour
	}
	m.reconcileTicker = time.NewTicker(reconcileInterval)
	m.wg.Add(1)
	go m.reconcileWorker(reconcileInterval)

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.reconcileTicker != nil {
		m.reconcileTicker.Stop()
	}

	close(m.stopCh)
	m.running = false

	m.wg.Wait()
	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// reconcileWorker periodically enqueues a full reconciliation sweep
func (m *Manager) reconcileWorker(interval time.Duration) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started reconcile worker (interval: %s)", interval)

	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Reconcile worker stopping")
			return
		case <-m.reconcileTicker.C:
			if err := m.RunReconcileSweepOnce(); err != nil {
				log.Errorf("[JobQueue Manager] Error enqueuing reconcile sweep: %v", err)
			}
		}
	}
}

// RunReconcileSweepOnce enqueues a single full reconciliation sweep (admin use).
func (m *Manager) RunReconcileSweepOnce() error {
	_, err := m.queue.EnqueueJob(JobTypeLedgerReconcile, LedgerReconcileJobPayload{}.ToMap())
	return err
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
