package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/gyrohook/internal/calibration"
	"github.com/banshee-data/gyrohook/internal/fsutil"
)

// Bootstrap is the secondary settings file written once on first run.
type Bootstrap struct {
	RotationX  float64 `json:"rotation_x"`
	RotationY  float64 `json:"rotation_y"`
	RotationZ  float64 `json:"rotation_z"`
	SocketPort int     `json:"socket_port"`
}

// BootstrapPath is the bootstrap settings file inside the data directory.
func (s *Store) BootstrapPath() string {
	return filepath.Join(s.dir, s.name)
}

// EnsureBootstrap creates the bootstrap settings file with default values if
// it does not exist, and in either case makes it world-readable. It reports
// whether the file was created.
func (s *Store) EnsureBootstrap() (bool, error) {
	path := s.BootstrapPath()
	created := false

	if !s.fs.Exists(path) {
		def := calibration.DefaultProfile()
		data, err := json.Marshal(Bootstrap{
			RotationX:  def.OffsetX,
			RotationY:  def.OffsetY,
			RotationZ:  def.OffsetZ,
			SocketPort: def.ListenPort,
		})
		if err != nil {
			return false, fmt.Errorf("failed to encode bootstrap settings: %w", err)
		}
		if err := s.fs.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
			return false, &calibration.PersistenceError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
		}
		if err := fsutil.WriteFileAtomic(s.fs, path, data, snapshotPerm); err != nil {
			return false, &calibration.PersistenceError{Op: "write", Path: path, Err: err}
		}
		created = true
	}

	if err := s.fs.Chmod(path, snapshotPerm); err != nil {
		return created, &calibration.PersistenceError{Op: "chmod", Path: path, Err: err}
	}
	return created, nil
}

// ReadBootstrap decodes the bootstrap settings file.
func (s *Store) ReadBootstrap() (Bootstrap, error) {
	path := s.BootstrapPath()
	data, err := s.fs.ReadFile(path)
	if err != nil {
		return Bootstrap{}, &calibration.PersistenceError{Op: "read", Path: path, Err: err}
	}
	var b Bootstrap
	if err := json.Unmarshal(data, &b); err != nil {
		return Bootstrap{}, &calibration.PersistenceError{Op: "decode", Path: path, Err: err}
	}
	return b, nil
}
