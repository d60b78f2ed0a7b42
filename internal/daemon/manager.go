package daemon

import (
	"context"
	"errors"
	"flexport/internal/access"
	"flexport/internal/driver"
	"flexport/internal/logger"
	"flexport/internal/model"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalid     = errors.New("invalid request")
	ErrFinished    = errors.New("session already finished")
	ErrUnsupported = errors.New("unsupported session type")
	ErrStopped     = errors.New("transfer manager stopped")
)

const (
	detailCancelled   = "cancelled by user"
	detailInterrupted = "interrupted by shutdown"
)

type SessionStore interface {
	Create(ctx context.Context, session *model.Session) error
	UpdateStatus(ctx context.Context, id string, update model.StatusUpdate) (bool, error)
	Get(ctx context.Context, id string) (model.Session, error)
	GetByOwner(ctx context.Context, owner string) ([]model.Session, error)
	Delete(ctx context.Context, id string) error
}

// TransferManager turns transfer requests into background jobs, one goroutine
// per session, and keeps the table of jobs still running.
type TransferManager struct {
	mu       sync.RWMutex
	jobs     map[string]*TransferState
	stopped  bool
	wg       sync.WaitGroup
	store    SessionStore
	drivers  map[model.SessionKind]driver.Driver
	access   access.Checker
	interval time.Duration
	now      func() time.Time
	newID    func() string
}

func NewTransferManager(store SessionStore, checker access.Checker, interval time.Duration, drivers ...driver.Driver) *TransferManager {
	m := &TransferManager{
		jobs:     make(map[string]*TransferState),
		store:    store,
		drivers:  make(map[model.SessionKind]driver.Driver, len(drivers)),
		access:   checker,
		interval: interval,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, d := range drivers {
		m.drivers[d.Kind()] = d
	}

	return m
}

func (m *TransferManager) driverFor(kind model.SessionKind) (driver.Driver, error) {
	d, ok := m.drivers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, kind)
	}

	return d, nil
}

func (m *TransferManager) checkAccess(local, owner string) error {
	if !m.access.HasAccess(local, owner) {
		return fmt.Errorf("%w: %s may not write to %s", driver.ErrAuth, owner, local)
	}

	return nil
}

func validateConnection(conn driver.Connection, remote, local string) error {
	switch {
	case conn.Host == "":
		return fmt.Errorf("%w: host is required", ErrInvalid)
	case conn.Port < 0 || conn.Port > 65535:
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, conn.Port)
	case remote == "":
		return fmt.Errorf("%w: remote path is required", ErrInvalid)
	case local == "":
		return fmt.Errorf("%w: local path is required", ErrInvalid)
	}

	return nil
}

func (m *TransferManager) StartFTP(ctx context.Context, conn driver.Connection, remote, local, owner string) (string, error) {
	return m.startRemote(ctx, model.KindFTP, conn, remote, local, owner)
}

func (m *TransferManager) StartSFTP(ctx context.Context, conn driver.Connection, remote, local, owner string) (string, error) {
	return m.startRemote(ctx, model.KindSFTP, conn, remote, local, owner)
}

func (m *TransferManager) startRemote(ctx context.Context, kind model.SessionKind, conn driver.Connection, remote, local, owner string) (string, error) {
	d, err := m.driverFor(kind)
	if err != nil {
		return "", err
	}

	if err := validateConnection(conn, remote, local); err != nil {
		return "", err
	}

	if err := m.checkAccess(local, owner); err != nil {
		return "", err
	}

	return m.start(ctx, d, job{
		conn:   conn,
		remote: remote,
		local:  local,
		label:  path.Base(remote),
		owner:  owner,
	})
}

// StartLinks creates one session per URL, each downloading into destDir.
func (m *TransferManager) StartLinks(ctx context.Context, urls []string, destDir, owner string) ([]string, error) {
	d, err := m.driverFor(model.KindLink)
	if err != nil {
		return nil, err
	}

	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: at least one link is required", ErrInvalid)
	}
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("%w: not an http(s) link: %q", ErrInvalid, raw)
		}
	}

	if err := m.checkAccess(destDir, owner); err != nil {
		return nil, err
	}

	info, err := os.Stat(destDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: destination %s is not a directory", driver.ErrNotFound, destDir)
	}

	ids := make([]string, 0, len(urls))
	for _, raw := range urls {
		name := driver.LinkName(raw)
		id, err := m.start(ctx, d, job{
			remote: raw,
			local:  filepath.Join(destDir, name),
			label:  name,
			owner:  owner,
		})
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}

	return ids, nil
}

type job struct {
	conn   driver.Connection
	remote string
	local  string
	label  string
	owner  string
}

func (m *TransferManager) start(ctx context.Context, d driver.Driver, j job) (string, error) {
	m.mu.RLock()
	stopped := m.stopped
	m.mu.RUnlock()
	if stopped {
		return "", ErrStopped
	}

	now := m.now()
	session := &model.Session{
		ID:            m.newID(),
		Owner:         j.owner,
		Kind:          d.Kind(),
		Status:        model.StatusQueued,
		SourceLabel:   j.label,
		Destination:   j.local,
		StartedAt:     now.Format(model.TimeLayout),
		StartedAtUnix: now.Unix(),
	}
	if err := m.store.Create(ctx, session); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	state := NewTransferState(session, j.remote, now, cancel)

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		cancel()
		_, _ = m.store.UpdateStatus(context.Background(), session.ID, state.Final(model.StatusFailed, detailInterrupted))
		return "", ErrStopped
	}
	m.jobs[session.ID] = state
	m.wg.Go(func() {
		m.run(jobCtx, state, d, j)
	})
	m.mu.Unlock()

	logger.Log.Info("transfer queued",
		zap.String("session", session.ID),
		zap.String("type", string(session.Kind)),
		zap.String("owner", j.owner),
		zap.String("src", j.remote),
		zap.String("dst", j.local))

	return session.ID, nil
}

func (m *TransferManager) run(ctx context.Context, state *TransferState, d driver.Driver, j job) {
	defer func() {
		state.Cancel()

		m.mu.Lock()
		delete(m.jobs, state.SessionID)
		m.mu.Unlock()
	}()

	if !m.write(state, model.StatusUpdate{Status: model.StatusProcessing}) {
		logger.Log.Info("transfer dropped before start",
			zap.String("session", state.SessionID))
		return
	}

	err := d.Download(ctx, j.conn, j.remote, j.local, func(done, total int64) {
		update, ok := state.Advance(done, total, m.now(), m.interval)
		if ok {
			m.write(state, update)
		}
	})

	switch {
	case err == nil:
		// A cancel or delete that lands after the driver returned cannot be
		// undone; the session stays as written and the output is kept.
		if !m.write(state, state.Final(model.StatusCompleted, "")) {
			logger.Log.Info("transfer finished after its session was closed, output kept",
				zap.String("session", state.SessionID),
				zap.String("dst", state.Destination))
			return
		}
		logger.Log.Info("transfer completed",
			zap.String("session", state.SessionID))

	case errors.Is(err, driver.ErrCancelled) || ctx.Err() != nil:
		logger.Log.Info("transfer cancelled",
			zap.String("session", state.SessionID),
			zap.Error(err))

	default:
		m.write(state, state.Final(model.StatusFailed, err.Error()))
		logger.Log.Warn("transfer failed",
			zap.String("session", state.SessionID),
			zap.Error(err))
	}
}

// write persists update and cancels the job when the session can no longer be
// written, because it was deleted or already reached a terminal state.
func (m *TransferManager) write(state *TransferState, update model.StatusUpdate) bool {
	applied, err := m.store.UpdateStatus(context.Background(), state.SessionID, update)
	if err != nil {
		logger.Log.Warn("failed to update session",
			zap.String("session", state.SessionID),
			zap.Error(err))
		return true
	}

	if !applied {
		state.Cancel()
	}

	return applied
}

// ListRemote lists remotePath synchronously through the driver for kind.
func (m *TransferManager) ListRemote(ctx context.Context, kind model.SessionKind, conn driver.Connection, remotePath string) ([]model.RemoteEntry, error) {
	d, err := m.driverFor(kind)
	if err != nil {
		return nil, err
	}

	if remotePath == "" {
		return nil, fmt.Errorf("%w: path is required", ErrInvalid)
	}
	if kind != model.KindLink && conn.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalid)
	}

	return d.List(ctx, conn, remotePath)
}

func (m *TransferManager) Sessions(ctx context.Context, owner string) ([]model.Session, error) {
	return m.store.GetByOwner(ctx, owner)
}

func (m *TransferManager) Session(ctx context.Context, id string) (model.Session, error) {
	return m.store.Get(ctx, id)
}

// DeleteSession removes the session row and stops its job if one is running.
func (m *TransferManager) DeleteSession(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if state, ok := m.job(id); ok {
		state.Cancel()
		logger.Log.Info("running transfer deleted",
			zap.String("session", id))
	}

	return nil
}

// CancelSession marks a non-terminal session Failed and stops its job.
func (m *TransferManager) CancelSession(ctx context.Context, id string) error {
	session, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if session.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrFinished, id, session.Status)
	}

	applied, err := m.store.UpdateStatus(ctx, id, model.StatusUpdate{
		Status:     model.StatusFailed,
		Detail:     detailCancelled,
		Progress:   session.Progress,
		BytesDone:  session.BytesDone,
		BytesTotal: session.BytesTotal,
	})
	if err != nil {
		return fmt.Errorf("failed to cancel session: %w", err)
	}

	if state, ok := m.job(id); ok {
		state.Cancel()
	}

	if !applied {
		return fmt.Errorf("%w: %s", ErrFinished, id)
	}

	logger.Log.Info("transfer cancelled by user",
		zap.String("session", id))

	return nil
}

func (m *TransferManager) job(id string) (*TransferState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.jobs[id]
	return state, ok
}

// Snapshots returns the running transfers, oldest first.
func (m *TransferManager) Snapshots() []model.TransferSnapshot {
	m.mu.RLock()
	snaps := make([]model.TransferSnapshot, 0, len(m.jobs))
	for _, state := range m.jobs {
		snaps = append(snaps, state.Snapshot())
	}
	m.mu.RUnlock()

	slices.SortFunc(snaps, func(a, b model.TransferSnapshot) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		if a.SessionID < b.SessionID {
			return -1
		}
		if a.SessionID > b.SessionID {
			return 1
		}
		return 0
	})

	return snaps
}

// StopAll marks every running session Failed, cancels the jobs and waits for
// them to clean up until ctx is done. No new transfers are accepted afterwards.
func (m *TransferManager) StopAll(ctx context.Context) {
	m.mu.Lock()
	m.stopped = true
	states := make([]*TransferState, 0, len(m.jobs))
	for _, state := range m.jobs {
		states = append(states, state)
	}
	m.mu.Unlock()

	for _, state := range states {
		_, err := m.store.UpdateStatus(context.Background(), state.SessionID, state.Final(model.StatusFailed, detailInterrupted))
		if err != nil {
			logger.Log.Warn("failed to mark session interrupted",
				zap.String("session", state.SessionID),
				zap.Error(err))
		}
		state.Cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		logger.Log.Warn("transfers still running at shutdown",
			zap.Int("count", len(m.Snapshots())))
	}
}

// Wait blocks until every started job has returned.
func (m *TransferManager) Wait() {
	m.wg.Wait()
}
