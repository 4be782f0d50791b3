package store

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gyrohook/internal/calibration"
	"github.com/banshee-data/gyrohook/internal/fsutil"
	"github.com/banshee-data/gyrohook/internal/monitoring"
)

func quietLogs(t *testing.T) {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = original })
}

func newMemStore(t *testing.T) (*Store, *fsutil.MemoryFileSystem) {
	t.Helper()
	quietLogs(t)
	mfs := fsutil.NewMemoryFileSystem()
	return New(Options{FS: mfs, Dir: "/data/user/0/gyrohook"}), mfs
}

func TestStore_Paths(t *testing.T) {
	s := New(Options{Dir: "/data/app"})
	assert.Equal(t, "/data/app/shared_prefs/gyro_settings.xml", s.Path())
	assert.Equal(t, "/data/app/gyro_settings", s.BootstrapPath())

	named := New(Options{Dir: "/d", Name: "custom"})
	assert.Equal(t, "/d/shared_prefs/custom.xml", named.Path())
}

func TestStore_WriteThenRead(t *testing.T) {
	s, _ := newMemStore(t)

	assert.Equal(t, calibration.DefaultProfile(), s.Read(), "fresh store should hold the default profile")

	want := calibration.Profile{OffsetX: 1.5, OffsetY: -2.0, OffsetZ: 3.25, ListenPort: 20000}
	require.NoError(t, s.Write(want))

	if diff := cmp.Diff(want, s.Read()); diff != "" {
		t.Errorf("Read() mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, s.Exists())
}

func TestStore_ReloadFromAnotherInstance(t *testing.T) {
	writer, mfs := newMemStore(t)
	reader := New(Options{FS: mfs, Dir: "/data/user/0/gyrohook"})

	want := calibration.Profile{OffsetX: 0.25, OffsetY: 0.5, OffsetZ: -0.75, ListenPort: 16385}
	require.NoError(t, writer.Write(want))

	assert.Equal(t, calibration.DefaultProfile(), reader.Read(), "Read must not touch storage")
	assert.Equal(t, want, reader.Reload())
	assert.Equal(t, want, reader.Read())
}

func TestStore_ReloadMissingReturnsDefault(t *testing.T) {
	s, _ := newMemStore(t)
	assert.Equal(t, calibration.DefaultProfile(), s.Reload())
}

func TestStore_ReloadUnreadableReturnsDefault(t *testing.T) {
	s, mfs := newMemStore(t)
	require.NoError(t, s.Write(calibration.Profile{OffsetX: 3, OffsetY: 3, OffsetZ: 3, ListenPort: 16384}))

	mfs.Fail("read", os.ErrPermission)
	assert.Equal(t, calibration.DefaultProfile(), s.Reload())
	assert.Equal(t, calibration.DefaultProfile(), s.Read(), "failed reload publishes the default")

	mfs.Fail("read", nil)
	assert.Equal(t, 3.0, s.Reload().OffsetX)
}

func TestStore_ReloadCorruptReturnsDefault(t *testing.T) {
	s, mfs := newMemStore(t)
	require.NoError(t, mfs.MkdirAll(filepath.Dir(s.Path()), 0755))
	require.NoError(t, mfs.WriteFile(s.Path(), []byte("<map><float name="), 0644))

	assert.Equal(t, calibration.DefaultProfile(), s.Reload())
}

func TestStore_ReloadInvalidPortFallsBack(t *testing.T) {
	s, mfs := newMemStore(t)
	require.NoError(t, mfs.MkdirAll(filepath.Dir(s.Path()), 0755))
	doc := `<map><float name="x" value="1" /><int name="socket_port" value="80" /></map>`
	require.NoError(t, mfs.WriteFile(s.Path(), []byte(doc), 0644))

	got := s.Reload()
	assert.Equal(t, 1.0, got.OffsetX)
	assert.Equal(t, calibration.DefaultListenPort, got.ListenPort)
}

func TestStore_WriteFailureKeepsSnapshot(t *testing.T) {
	s, mfs := newMemStore(t)
	before := calibration.Profile{OffsetX: 1, OffsetY: 1, OffsetZ: 1, ListenPort: 16384}
	require.NoError(t, s.Write(before))

	mfs.Fail("write", errors.New("no space left on device"))
	err := s.Write(calibration.Profile{OffsetX: 2, OffsetY: 2, OffsetZ: 2, ListenPort: 16384})

	var perr *calibration.PersistenceError
	require.True(t, errors.As(err, &perr), "expected *PersistenceError, got %v", err)
	assert.Equal(t, before, s.Read())

	mfs.Fail("write", nil)
	assert.Equal(t, before, s.Reload(), "durable file must still hold the previous snapshot")
}

func TestStore_WriteRejectsInvalidPort(t *testing.T) {
	s, mfs := newMemStore(t)
	err := s.Write(calibration.Profile{ListenPort: 70000})

	var verr *calibration.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Empty(t, mfs.Files(), "nothing should be written for an invalid profile")
}

func TestStore_WriteGrantsReadPermission(t *testing.T) {
	s, mfs := newMemStore(t)
	require.NoError(t, s.Write(calibration.DefaultProfile()))

	mode, ok := mfs.Mode(s.Path())
	require.True(t, ok)
	assert.Equal(t, os.FileMode(0644), mode)

	dirMode, ok := mfs.Mode(filepath.Dir(s.Path()))
	require.True(t, ok)
	assert.Equal(t, os.FileMode(0755), dirMode)

	require.NoError(t, mfs.Chmod(s.Path(), 0600))
	require.NoError(t, s.EnsureReadable())
	mode, _ = mfs.Mode(s.Path())
	assert.Equal(t, os.FileMode(0644), mode)
}

func TestStore_EnsureReadableMissingFile(t *testing.T) {
	s, _ := newMemStore(t)
	err := s.EnsureReadable()

	var perr *calibration.PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "chmod", perr.Op)
}

// TestStore_ConcurrentWritesNeverTear hammers the store from several writers
// while readers check that every observed snapshot came from a single write.
// Each writer uses the same value on all three axes, so a torn snapshot shows
// up as differing axes.
func TestStore_ConcurrentWritesNeverTear(t *testing.T) {
	s, _ := newMemStore(t)

	const writers = 8
	const writesEach = 50

	var wg sync.WaitGroup
	stop := make(chan struct{})
	torn := make(chan calibration.Profile, 1)

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func(reload bool) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				p := s.Read()
				if reload {
					p = s.Reload()
				}
				if p.OffsetX != p.OffsetY || p.OffsetY != p.OffsetZ {
					select {
					case torn <- p:
					default:
					}
					return
				}
			}
		}(r%2 == 0)
	}

	var writeWG sync.WaitGroup
	for w := 1; w <= writers; w++ {
		writeWG.Add(1)
		go func(w int) {
			defer writeWG.Done()
			for i := 0; i < writesEach; i++ {
				v := float64(w*1000 + i)
				if err := s.Write(calibration.Profile{OffsetX: v, OffsetY: v, OffsetZ: v, ListenPort: 16384}); err != nil {
					t.Errorf("write failed: %v", err)
					return
				}
			}
		}(w)
	}
	writeWG.Wait()
	close(stop)
	wg.Wait()

	select {
	case p := <-torn:
		t.Fatalf("observed torn snapshot %v", p)
	default:
	}

	final := s.Read()
	assert.Equal(t, final, s.Reload(), "memory and disk must agree after the last write")
}

func TestStore_OSFileSystem(t *testing.T) {
	quietLogs(t)
	dir := t.TempDir()
	s := New(Options{Dir: dir})

	want := calibration.Profile{OffsetX: 0.1, OffsetY: 0.2, OffsetZ: 0.3, ListenPort: 16384}
	require.NoError(t, s.Write(want))

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Dir(s.Path()))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), dirInfo.Mode().Perm())

	other := New(Options{Dir: dir})
	assert.Equal(t, want, other.Reload())
}

func TestStore_UpdateAppliesToLatestSnapshot(t *testing.T) {
	s, _ := newMemStore(t)
	require.NoError(t, s.Write(calibration.Profile{OffsetX: 9, ListenPort: 20000}))

	got, err := s.Update(func(p calibration.Profile) calibration.Profile {
		return p.WithOffsets(calibration.Offsets{X: 1, Y: 2, Z: 3})
	})
	require.NoError(t, err)

	want := calibration.Profile{OffsetX: 1, OffsetY: 2, OffsetZ: 3, ListenPort: 20000}
	assert.Equal(t, want, got)
	assert.Equal(t, want, s.Read())
	assert.Equal(t, want, s.Reload())
}

func TestStore_UpdateRejectsInvalidResult(t *testing.T) {
	s, mfs := newMemStore(t)
	_, err := s.Update(func(p calibration.Profile) calibration.Profile {
		p.ListenPort = 80
		return p
	})

	var verr *calibration.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Empty(t, mfs.Files())
	assert.Equal(t, calibration.DefaultProfile(), s.Read())
}

func TestStore_ConcurrentUpdatesNeverLoseWrites(t *testing.T) {
	s, _ := newMemStore(t)

	const workers = 8
	const each = 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				_, err := s.Update(func(p calibration.Profile) calibration.Profile {
					p.OffsetX++
					return p
				})
				if err != nil {
					t.Errorf("update failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(workers*each), s.Read().OffsetX)
	assert.Equal(t, float64(workers*each), s.Reload().OffsetX)
}
