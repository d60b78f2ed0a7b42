package daemon

import (
	"context"
	"flexport/internal/access"
	"flexport/internal/driver"
	"flexport/internal/model"
	"flexport/internal/repository"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type downloadFunc func(ctx context.Context, conn driver.Connection, remote, local string, progress driver.ProgressFunc) error

type fakeDriver struct {
	kind     model.SessionKind
	download downloadFunc
	entries  []model.RemoteEntry
	listErr  error
}

func (d *fakeDriver) Kind() model.SessionKind {
	return d.kind
}

func (d *fakeDriver) List(ctx context.Context, conn driver.Connection, remotePath string) ([]model.RemoteEntry, error) {
	return d.entries, d.listErr
}

func (d *fakeDriver) Download(ctx context.Context, conn driver.Connection, remote, local string, progress driver.ProgressFunc) error {
	return d.download(ctx, conn, remote, local, progress)
}

type attempt struct {
	update  model.StatusUpdate
	applied bool
}

// recordingStore remembers every status write a job attempted.
type recordingStore struct {
	*repository.MemorySessionRepository
	mu       sync.Mutex
	attempts map[string][]attempt
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		MemorySessionRepository: repository.NewMemorySessionRepository(),
		attempts:                make(map[string][]attempt),
	}
}

func (s *recordingStore) UpdateStatus(ctx context.Context, id string, update model.StatusUpdate) (bool, error) {
	applied, err := s.MemorySessionRepository.UpdateStatus(ctx, id, update)

	s.mu.Lock()
	s.attempts[id] = append(s.attempts[id], attempt{update: update, applied: applied})
	s.mu.Unlock()

	return applied, err
}

func (s *recordingStore) attemptsFor(id string) []attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]attempt(nil), s.attempts[id]...)
}

func steps(sizes ...int64) downloadFunc {
	return func(ctx context.Context, conn driver.Connection, remote, local string, progress driver.ProgressFunc) error {
		var total int64
		for _, n := range sizes {
			total += n
		}

		var done int64
		for _, n := range sizes {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%w: %w", driver.ErrCancelled, err)
			}
			done += n
			progress(done, total)
		}
		return nil
	}
}

// blockUntilCancelled reports some progress, signals started and then waits
// for the job context like a driver stuck between chunks.
func blockUntilCancelled(started chan<- struct{}) downloadFunc {
	return func(ctx context.Context, conn driver.Connection, remote, local string, progress driver.ProgressFunc) error {
		progress(10, 100)
		close(started)
		<-ctx.Done()
		return fmt.Errorf("%w: %w", driver.ErrCancelled, ctx.Err())
	}
}

func newTestManager(store SessionStore, drivers ...driver.Driver) *TransferManager {
	return NewTransferManager(store, access.AllowAll{}, 0, drivers...)
}

var testConn = driver.Connection{Host: "files.test", Username: "u", Password: "p"}

func TestTransferCompletes(t *testing.T) {
	store := newRecordingStore()
	m := newTestManager(store, &fakeDriver{kind: model.KindFTP, download: steps(25, 25, 50)})

	id, err := m.StartFTP(context.Background(), testConn, "/pub/data.bin", "/tmp/data.bin", "alice")
	require.NoError(t, err)
	m.Wait()

	session, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, session.Status)
	assert.Equal(t, 100, session.Progress)
	assert.Equal(t, int64(100), session.BytesDone)
	assert.NotEmpty(t, session.CompletedAt)
	assert.Equal(t, "data.bin", session.SourceLabel)
	assert.Equal(t, model.KindFTP, session.Kind)
	assert.Empty(t, m.Snapshots())
}

func TestTransferQueuedBeforeReturn(t *testing.T) {
	store := newRecordingStore()
	release := make(chan struct{})
	m := newTestManager(store, &fakeDriver{kind: model.KindSFTP, download: func(ctx context.Context, conn driver.Connection, remote, local string, progress driver.ProgressFunc) error {
		<-release
		return nil
	}})

	id, err := m.StartSFTP(context.Background(), testConn, "/data", "/tmp/data", "alice")
	require.NoError(t, err)

	session, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Contains(t, []model.SessionStatus{model.StatusQueued, model.StatusProcessing}, session.Status)

	close(release)
	m.Wait()
}

func TestTransferFailureRecordsDetail(t *testing.T) {
	store := newRecordingStore()
	m := newTestManager(store, &fakeDriver{kind: model.KindSFTP, download: func(ctx context.Context, conn driver.Connection, remote, local string, progress driver.ProgressFunc) error {
		progress(40, 100)
		return fmt.Errorf("%w: files.test:22: connection reset by peer", driver.ErrConnection)
	}})

	id, err := m.StartSFTP(context.Background(), testConn, "/data", "/tmp/data", "alice")
	require.NoError(t, err)
	m.Wait()

	session, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, session.Status)
	assert.Contains(t, session.Detail, "connection reset by peer")
	assert.Equal(t, 40, session.Progress)
	assert.Empty(t, session.CompletedAt)
}

func TestDeleteMidTransferStopsWithoutWrites(t *testing.T) {
	store := newRecordingStore()
	started := make(chan struct{})
	m := newTestManager(store, &fakeDriver{kind: model.KindFTP, download: blockUntilCancelled(started)})

	id, err := m.StartFTP(context.Background(), testConn, "/big.iso", "/tmp/big.iso", "alice")
	require.NoError(t, err)
	<-started

	require.NoError(t, m.DeleteSession(context.Background(), id))
	m.Wait()

	_, err = store.Get(context.Background(), id)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	for _, a := range store.attemptsFor(id) {
		assert.Equal(t, model.StatusProcessing, a.update.Status)
	}
	assert.Empty(t, m.Snapshots())
}

func TestExternalDeleteCancelsOnNextWrite(t *testing.T) {
	store := newRecordingStore()
	deleted := make(chan struct{})
	var observed error
	m := newTestManager(store, &fakeDriver{kind: model.KindFTP, download: func(ctx context.Context, conn driver.Connection, remote, local string, progress driver.ProgressFunc) error {
		progress(10, 100)
		<-deleted
		progress(20, 100)
		observed = ctx.Err()
		return fmt.Errorf("%w: %w", driver.ErrCancelled, ctx.Err())
	}})

	id, err := m.StartFTP(context.Background(), testConn, "/f", "/tmp/f", "alice")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(store.attemptsFor(id)) >= 2
	}, time.Second, 5*time.Millisecond)

	// Removed behind the manager's back, as another process would.
	require.NoError(t, store.Delete(context.Background(), id))
	close(deleted)
	m.Wait()

	assert.ErrorIs(t, observed, context.Canceled)
	attempts := store.attemptsFor(id)
	assert.False(t, attempts[len(attempts)-1].applied)
}

func TestCancelMidTransferKeepsFailed(t *testing.T) {
	store := newRecordingStore()
	started := make(chan struct{})
	m := newTestManager(store, &fakeDriver{kind: model.KindSFTP, download: blockUntilCancelled(started)})

	id, err := m.StartSFTP(context.Background(), testConn, "/big", "/tmp/big", "alice")
	require.NoError(t, err)
	<-started

	require.NoError(t, m.CancelSession(context.Background(), id))
	m.Wait()

	session, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, session.Status)
	assert.Equal(t, "cancelled by user", session.Detail)
	assert.Equal(t, 10, session.Progress)

	err = m.CancelSession(context.Background(), id)
	assert.ErrorIs(t, err, ErrFinished)
}

func TestCancelMissingSession(t *testing.T) {
	m := newTestManager(newRecordingStore())
	assert.ErrorIs(t, m.CancelSession(context.Background(), "missing"), repository.ErrNotFound)
}

func TestCancelAfterDriverFinishedKeepsOutput(t *testing.T) {
	store := newRecordingStore()
	started := make(chan struct{})
	release := make(chan struct{})
	m := newTestManager(store, &fakeDriver{kind: model.KindFTP, download: func(ctx context.Context, conn driver.Connection, remote, local string, progress driver.ProgressFunc) error {
		close(started)
		<-release
		return os.WriteFile(local, []byte("done"), 0644)
	}})

	local := filepath.Join(t.TempDir(), "out.bin")
	id, err := m.StartFTP(context.Background(), testConn, "/out.bin", local, "alice")
	require.NoError(t, err)
	<-started

	require.NoError(t, m.CancelSession(context.Background(), id))
	close(release)
	m.Wait()

	session, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, session.Status)
	assert.Equal(t, "cancelled by user", session.Detail)
	assert.FileExists(t, local)

	attempts := store.attemptsFor(id)
	require.NotEmpty(t, attempts)
	assert.Equal(t, model.StatusCompleted, attempts[len(attempts)-1].update.Status)
	assert.False(t, attempts[len(attempts)-1].applied)
}

func TestConcurrentTransfersIndependent(t *testing.T) {
	store := newRecordingStore()
	var wg sync.WaitGroup
	wg.Add(2)
	barrier := func(sizes ...int64) downloadFunc {
		next := steps(sizes...)
		return func(ctx context.Context, conn driver.Connection, remote, local string, progress driver.ProgressFunc) error {
			wg.Done()
			wg.Wait()
			return next(ctx, conn, remote, local, progress)
		}
	}

	ftpDriver := &fakeDriver{kind: model.KindFTP, download: barrier(50, 50)}
	sftpDriver := &fakeDriver{kind: model.KindSFTP, download: barrier(10, 10, 10, 10)}
	m := newTestManager(store, ftpDriver, sftpDriver)

	a, err := m.StartFTP(context.Background(), testConn, "/a", "/tmp/a", "alice")
	require.NoError(t, err)
	b, err := m.StartSFTP(context.Background(), testConn, "/b", "/tmp/b", "bob")
	require.NoError(t, err)
	m.Wait()

	var progressA, progressB []int
	for _, at := range store.attemptsFor(a) {
		progressA = append(progressA, at.update.Progress)
	}
	for _, at := range store.attemptsFor(b) {
		progressB = append(progressB, at.update.Progress)
	}
	assert.Equal(t, []int{0, 50, 100, 100}, progressA)
	assert.Equal(t, []int{0, 25, 50, 75, 100, 100}, progressB)

	sa, err := store.Get(context.Background(), a)
	require.NoError(t, err)
	sb, err := store.Get(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, sa.Status)
	assert.Equal(t, model.StatusCompleted, sb.Status)
	assert.Equal(t, int64(100), sa.BytesTotal)
	assert.Equal(t, int64(40), sb.BytesTotal)
}

func TestProgressNeverDecreases(t *testing.T) {
	store := newRecordingStore()
	m := newTestManager(store, &fakeDriver{kind: model.KindFTP, download: func(ctx context.Context, conn driver.Connection, remote, local string, progress driver.ProgressFunc) error {
		progress(30, 100)
		progress(20, 100)
		progress(60, 100)
		progress(150, 100)
		progress(90, 100)
		return nil
	}})

	id, err := m.StartFTP(context.Background(), testConn, "/f", "/tmp/f", "alice")
	require.NoError(t, err)
	m.Wait()

	var seen []int
	for _, a := range store.attemptsFor(id) {
		seen = append(seen, a.update.Progress)
		assert.LessOrEqual(t, a.update.Progress, 100)
	}
	assert.IsNonDecreasing(t, seen)
}

func TestProgressThrottledByInterval(t *testing.T) {
	store := newRecordingStore()
	m := NewTransferManager(store, access.AllowAll{}, time.Hour, &fakeDriver{kind: model.KindLink, download: func(ctx context.Context, conn driver.Connection, remote, local string, progress driver.ProgressFunc) error {
		for i := int64(1); i <= 1000; i++ {
			progress(i, 1000)
		}
		return nil
	}})

	dir := t.TempDir()
	ids, err := m.StartLinks(context.Background(), []string{"https://example.com/x.bin"}, dir, "alice")
	require.NoError(t, err)
	m.Wait()

	// Processing, one write per percent, Completed.
	assert.Len(t, store.attemptsFor(ids[0]), 102)
}

func TestStartRejectsDeniedDestination(t *testing.T) {
	store := newRecordingStore()
	root := t.TempDir()
	m := NewTransferManager(store, access.RootChecker{Root: root}, 0, &fakeDriver{kind: model.KindFTP, download: steps(1)})

	_, err := m.StartFTP(context.Background(), testConn, "/f", "/etc/passwd", "alice")
	assert.ErrorIs(t, err, driver.ErrAuth)

	sessions, err := store.GetByOwner(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestStartValidatesRequest(t *testing.T) {
	m := newTestManager(newRecordingStore(), &fakeDriver{kind: model.KindFTP, download: steps(1)})

	_, err := m.StartFTP(context.Background(), driver.Connection{}, "/f", "/tmp/f", "alice")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = m.StartFTP(context.Background(), testConn, "", "/tmp/f", "alice")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = m.StartSFTP(context.Background(), testConn, "/f", "/tmp/f", "alice")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestStartLinks(t *testing.T) {
	store := newRecordingStore()
	var mu sync.Mutex
	var locals []string
	m := newTestManager(store, &fakeDriver{kind: model.KindLink, download: func(ctx context.Context, conn driver.Connection, remote, local string, progress driver.ProgressFunc) error {
		mu.Lock()
		locals = append(locals, local)
		mu.Unlock()
		return os.WriteFile(local, []byte(remote), 0644)
	}})

	dir := t.TempDir()
	ids, err := m.StartLinks(context.Background(), []string{
		"https://example.com/a.txt",
		"http://example.org/dl/b.txt?token=1",
	}, dir, "alice")
	require.NoError(t, err)
	require.Len(t, ids, 2)
	m.Wait()

	assert.ElementsMatch(t, []string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.txt")}, locals)

	sessions, err := store.GetByOwner(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	for _, s := range sessions {
		assert.Equal(t, model.KindLink, s.Kind)
		assert.Equal(t, model.StatusCompleted, s.Status)
	}
}

func TestStartLinksDotDotNameStaysInDestination(t *testing.T) {
	store := newRecordingStore()
	m := newTestManager(store, &fakeDriver{kind: model.KindLink, download: steps(1)})

	dir := t.TempDir()
	ids, err := m.StartLinks(context.Background(), []string{"http://example.com/a/%2E%2E"}, dir, "alice")
	require.NoError(t, err)
	require.Len(t, ids, 1)
	m.Wait()

	session, err := store.Get(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "example.com"), session.Destination)
}

func TestStartLinksValidation(t *testing.T) {
	m := newTestManager(newRecordingStore(), &fakeDriver{kind: model.KindLink, download: steps(1)})
	dir := t.TempDir()

	_, err := m.StartLinks(context.Background(), nil, dir, "alice")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = m.StartLinks(context.Background(), []string{"ftp://example.com/x"}, dir, "alice")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = m.StartLinks(context.Background(), []string{"https://example.com/x"}, filepath.Join(dir, "missing"), "alice")
	assert.ErrorIs(t, err, driver.ErrNotFound)
}

func TestListRemote(t *testing.T) {
	entries := []model.RemoteEntry{{Name: "a", Type: model.EntryFile, Size: 3}}
	m := newTestManager(newRecordingStore(),
		&fakeDriver{kind: model.KindFTP, entries: entries},
		&fakeDriver{kind: model.KindSFTP, listErr: fmt.Errorf("%w: /nope", driver.ErrNotFound)})

	got, err := m.ListRemote(context.Background(), model.KindFTP, testConn, "/")
	require.NoError(t, err)
	assert.Equal(t, entries, got)

	_, err = m.ListRemote(context.Background(), model.KindSFTP, testConn, "/nope")
	assert.ErrorIs(t, err, driver.ErrNotFound)

	_, err = m.ListRemote(context.Background(), model.KindLink, driver.Connection{}, "https://x")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestStopAllInterruptsRunning(t *testing.T) {
	store := newRecordingStore()
	started := make(chan struct{})
	m := newTestManager(store, &fakeDriver{kind: model.KindFTP, download: blockUntilCancelled(started)})

	id, err := m.StartFTP(context.Background(), testConn, "/big", "/tmp/big", "alice")
	require.NoError(t, err)
	<-started

	snaps := m.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, id, snaps[0].SessionID)
	assert.Equal(t, 10, snaps[0].Progress)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.StopAll(ctx)

	session, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, session.Status)
	assert.Equal(t, "interrupted by shutdown", session.Detail)

	_, err = m.StartFTP(context.Background(), testConn, "/f", "/tmp/f", "alice")
	assert.ErrorIs(t, err, ErrStopped)
}
