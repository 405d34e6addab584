// Package diskmanager enforces the disk tier's capacity budget before the
// file-per-key serializers write.
package diskmanager

import (
	"sync"
	"syscall"

	"github.com/hydro-project/anna/internal/errors"
	"go.uber.org/zap"
)

// DiskManager tracks bytes consumed under a data directory against the
// configured node capacity.
type DiskManager struct {
	dataDir  string
	capacity uint64
	logger   *zap.Logger

	mu   sync.Mutex
	used uint64
}

// New creates a manager for a thread's data directory. capacity of zero
// disables budget enforcement.
func New(dataDir string, capacity uint64, logger *zap.Logger) *DiskManager {
	return &DiskManager{dataDir: dataDir, capacity: capacity, logger: logger}
}

// CheckBeforeWrite rejects a write whose estimated size would exceed either
// the configured capacity or the filesystem's free space.
func (dm *DiskManager) CheckBeforeWrite(estimatedBytes uint64) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.capacity > 0 && dm.used+estimatedBytes > dm.capacity {
		usage := float64(dm.used) / float64(dm.capacity) * 100
		dm.logger.Warn("disk capacity budget exceeded",
			zap.Uint64("used", dm.used),
			zap.Uint64("capacity", dm.capacity),
			zap.Uint64("estimated", estimatedBytes))
		return errors.DiskFull(usage, dm.capacity-dm.used)
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(dm.dataDir, &stat); err == nil {
		available := stat.Bavail * uint64(stat.Bsize)
		if estimatedBytes > available {
			return errors.DiskFull(100, available)
		}
	}
	return nil
}

// Account records a change in the number of bytes a key occupies on disk.
func (dm *DiskManager) Account(previous, current int) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if prev := uint64(previous); prev > dm.used {
		dm.used = 0
	} else {
		dm.used -= prev
	}
	dm.used += uint64(current)
}

// Used returns the tracked byte count.
func (dm *DiskManager) Used() uint64 {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.used
}
