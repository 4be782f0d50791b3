// Package store keeps the durable calibration snapshot. One process writes
// it; any number of processes, possibly less privileged, read it by calling
// Reload, since there is no channel to push changes to them.
package store

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/gyrohook/internal/calibration"
	"github.com/banshee-data/gyrohook/internal/fsutil"
	"github.com/banshee-data/gyrohook/internal/monitoring"
)

const (
	// DefaultName is the preferences name shared with the interception side.
	DefaultName = "gyro_settings"

	prefsDirName = "shared_prefs"

	snapshotPerm os.FileMode = 0644
	dirPerm      os.FileMode = 0755
)

// Options configures a Store.
type Options struct {
	// FS defaults to fsutil.OSFileSystem.
	FS fsutil.FileSystem
	// Dir is the application data directory.
	Dir string
	// Name defaults to DefaultName.
	Name string
}

// Store is the CalibrationStore. The in-memory snapshot is an immutable
// Profile behind an atomic pointer, swapped only after the durable file has
// been replaced, so Read never sees a half-built profile.
type Store struct {
	fs   fsutil.FileSystem
	dir  string
	name string

	// mu orders publishes: Write and Reload both hold it, so a reload
	// can never republish a file older than the last write.
	mu       sync.Mutex
	snapshot atomic.Pointer[calibration.Profile]
}

// New creates a Store whose in-memory snapshot starts at the default profile.
// Call Reload to pick up what is already on disk.
func New(opts Options) *Store {
	fsys := opts.FS
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	name := opts.Name
	if name == "" {
		name = DefaultName
	}

	s := &Store{fs: fsys, dir: opts.Dir, name: name}
	def := calibration.DefaultProfile()
	s.snapshot.Store(&def)
	return s
}

// Path is the durable snapshot file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, prefsDirName, s.name+".xml")
}

// Read returns the most recently loaded or written snapshot without I/O.
func (s *Store) Read() calibration.Profile {
	return *s.snapshot.Load()
}

// Exists reports whether a durable snapshot has ever been written.
func (s *Store) Exists() bool {
	return s.fs.Exists(s.Path())
}

// Reload re-reads the durable snapshot and publishes it. When the file is
// absent or cannot be read the default profile is published and returned;
// the failure is logged, never returned.
func (s *Store) Reload() calibration.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := ReadPrefsFile(s.fs, s.Path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			monitoring.Logf("calibration: no snapshot at %s yet, using defaults", s.Path())
		} else {
			monitoring.Warnf("calibration: reload failed, using defaults: %v", err)
		}
		p = calibration.DefaultProfile()
	} else if verr := p.Validate(); verr != nil {
		monitoring.Warnf("calibration: stored profile has %v, using port %d", verr, calibration.DefaultListenPort)
		p.ListenPort = calibration.DefaultListenPort
	}

	s.snapshot.Store(&p)
	return p
}

// Write durably replaces the snapshot with p and then publishes it in
// memory. Concurrent writers are serialised; the last to publish wins.
// After the replace, read permission is granted to other processes.
func (s *Store) Write(p calibration.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(p)
}

// Update applies change to the current snapshot and writes the result, all
// under the write lock, so a concurrent Write cannot land between the read
// and the write. change must not call back into the Store.
func (s *Store) Update(change func(calibration.Profile) calibration.Profile) (calibration.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := change(*s.snapshot.Load())
	if err := p.Validate(); err != nil {
		return calibration.Profile{}, err
	}
	if err := s.writeLocked(p); err != nil {
		return calibration.Profile{}, err
	}
	return p, nil
}

func (s *Store) writeLocked(p calibration.Profile) error {
	prefsDir := filepath.Dir(s.Path())
	if err := s.fs.MkdirAll(prefsDir, dirPerm); err != nil {
		return &calibration.PersistenceError{Op: "mkdir", Path: prefsDir, Err: err}
	}
	if err := WritePrefsFile(s.fs, s.Path(), p); err != nil {
		return err
	}

	published := p
	s.snapshot.Store(&published)

	if err := s.EnsureReadable(); err != nil {
		monitoring.Warnf("calibration: %v", err)
	}
	monitoring.Logf("calibration: saved %s", p)
	return nil
}

// EnsureReadable grants read access on the snapshot file and lets other
// users traverse its directory.
func (s *Store) EnsureReadable() error {
	path := s.Path()
	if err := s.fs.Chmod(path, snapshotPerm); err != nil {
		return &calibration.PersistenceError{Op: "chmod", Path: path, Err: err}
	}
	dir := filepath.Dir(path)
	if err := s.fs.Chmod(dir, dirPerm); err != nil {
		return &calibration.PersistenceError{Op: "chmod", Path: dir, Err: err}
	}
	return nil
}
