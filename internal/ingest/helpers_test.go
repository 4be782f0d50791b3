package ingest

import (
	"errors"
	"sync"
	"testing"

	"github.com/banshee-data/gyrohook/internal/calibration"
	"github.com/banshee-data/gyrohook/internal/fsutil"
	"github.com/banshee-data/gyrohook/internal/store"
	"github.com/banshee-data/gyrohook/internal/testutil"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(store.Options{FS: fsutil.NewMemoryFileSystem(), Dir: "/data/user/0/gyrohook"})
}

// startServer captures logs, starts a server on a free port and stops it
// when the test ends, before the log capture is undone.
func startServer(t *testing.T, cfg Config) (*Server, *testutil.LogCapture) {
	t.Helper()
	logs := testutil.CaptureLogs(t)
	if cfg.Store == nil {
		cfg.Store = newTestStore(t)
	}
	srv := NewServer(cfg)
	testutil.AssertNoError(t, srv.Start(testutil.FreePort(t)))
	t.Cleanup(func() {
		srv.Stop()
		srv.Wait()
	})
	return srv, logs
}

// flakyStore fails a configurable number of writes before succeeding.
type flakyStore struct {
	mu       sync.Mutex
	profile  calibration.Profile
	failures int
	writes   int
}

func (s *flakyStore) Read() calibration.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

func (s *flakyStore) Write(p calibration.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(p)
}

func (s *flakyStore) Update(change func(calibration.Profile) calibration.Profile) (calibration.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := change(s.profile)
	if err := p.Validate(); err != nil {
		return calibration.Profile{}, err
	}
	if err := s.writeLocked(p); err != nil {
		return calibration.Profile{}, err
	}
	return p, nil
}

func (s *flakyStore) writeLocked(p calibration.Profile) error {
	s.writes++
	if s.failures > 0 {
		s.failures--
		return &calibration.PersistenceError{Op: "write", Path: "/data/gyro_settings.xml", Err: errors.New("disk full")}
	}
	s.profile = p
	return nil
}
