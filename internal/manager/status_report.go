package manager

import (
	"sync/atomic"
	"time"

	"visionchat/pkg/types"
)

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{State: m.state, Err: m.err, QueueLen: len(m.queueCh), Inflight: len(m.genCh)}
}

// Status builds a detailed status response for /api/status.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	return types.StatusResponse{
		State: string(m.state),
		Model: m.cfg.Model,
		Queue: types.QueueStatus{
			QueueLen:       len(m.queueCh),
			Inflight:       len(m.genCh),
			MaxQueueDepth:  cap(m.queueCh),
			MaxWaitSeconds: int(m.maxWait / time.Second),
		},
		RequestsTotal:  atomic.LoadUint64(&m.requests),
		FailuresTotal:  atomic.LoadUint64(&m.failures),
		RejectedTotal:  atomic.LoadUint64(&m.rejected),
		LastError:      m.err,
		UptimeSeconds:  int64(now.Sub(m.startTime) / time.Second),
		ServerTimeUnix: now.Unix(),
	}
}
