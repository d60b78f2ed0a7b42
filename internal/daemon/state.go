package daemon

import (
	"context"
	"flexport/internal/model"
	"sync"
	"time"
)

// TransferState is the in-memory side of a running session.
type TransferState struct {
	mu          sync.RWMutex
	SessionID   string
	Owner       string
	Kind        model.SessionKind
	Source      string
	Destination string
	StartedAt   time.Time
	progress    int
	bytesDone   int64
	bytesTotal  int64
	lastWrite   time.Time
	cancel      context.CancelFunc
}

func NewTransferState(session *model.Session, source string, startedAt time.Time, cancel context.CancelFunc) *TransferState {
	return &TransferState{
		SessionID:   session.ID,
		Owner:       session.Owner,
		Kind:        session.Kind,
		Source:      source,
		Destination: session.Destination,
		StartedAt:   startedAt,
		lastWrite:   startedAt,
		cancel:      cancel,
	}
}

// Advance folds a driver progress report into the state and returns the
// update to persist. write is false when neither the integer percentage has
// moved nor interval has elapsed since the last persisted update.
func (s *TransferState) Advance(done, total int64, now time.Time, interval time.Duration) (update model.StatusUpdate, write bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bytesDone = max(done, s.bytesDone)
	s.bytesTotal = max(total, 0)

	pct := s.progress
	if s.bytesTotal > 0 {
		pct = int(min(s.bytesDone*100/s.bytesTotal, 100))
	}
	pct = max(pct, s.progress)

	changed := pct != s.progress
	s.progress = pct

	if !changed && now.Sub(s.lastWrite) < interval {
		return model.StatusUpdate{}, false
	}
	s.lastWrite = now

	return s.update(model.StatusProcessing, ""), true
}

// Final returns the update recorded when the session ends with status.
func (s *TransferState) Final(status model.SessionStatus, detail string) model.StatusUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()

	if status == model.StatusCompleted {
		s.progress = 100
		s.bytesTotal = max(s.bytesTotal, s.bytesDone)
	}

	return s.update(status, detail)
}

func (s *TransferState) update(status model.SessionStatus, detail string) model.StatusUpdate {
	return model.StatusUpdate{
		Status:     status,
		Detail:     detail,
		Progress:   s.progress,
		BytesDone:  s.bytesDone,
		BytesTotal: s.bytesTotal,
	}
}

func (s *TransferState) Cancel() {
	s.cancel()
}

func (s *TransferState) Snapshot() model.TransferSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return model.TransferSnapshot{
		SessionID:   s.SessionID,
		Owner:       s.Owner,
		Kind:        s.Kind,
		Source:      s.Source,
		Destination: s.Destination,
		StartedAt:   s.StartedAt,
		Progress:    s.progress,
		BytesDone:   s.bytesDone,
		BytesTotal:  s.bytesTotal,
	}
}
