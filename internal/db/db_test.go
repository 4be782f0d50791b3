package db

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gyrohook/internal/calibration"
	"github.com/banshee-data/gyrohook/internal/ingest"
	"github.com/banshee-data/gyrohook/internal/testutil"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	testutil.CaptureLogs(t)
	db, err := NewDB(filepath.Join(t.TempDir(), "gyrohook.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// loopbackRequest creates an httptest request tsweb's debug access check
// accepts.
func loopbackRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func update(id string, x float64, at time.Time) ingest.Update {
	return ingest.Update{
		ID:      id,
		Profile: calibration.Profile{OffsetX: x, OffsetY: -x, OffsetZ: x / 2, ListenPort: 16384},
		Source:  ingest.SourceSocket,
		Remote:  "192.168.1.20:50311",
		ConnID:  "conn-" + id,
		At:      at,
	}
}

func TestNewDB_MigratesSchema(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// Reopening an up to date database is a no-op.
	require.NoError(t, db.MigrateUp())
}

func TestMigrateDown(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.MigrateDown())

	version, _, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Zero(t, version)

	_, err = db.CountProfileUpdates(context.Background())
	assert.Error(t, err, "table should be gone")

	require.NoError(t, db.MigrateUp())
	n, err := db.CountProfileUpdates(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecordAndRecentProfileUpdates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, db.RecordProfileUpdate(ctx, update(id, float64(i+1), base.Add(time.Duration(i)*time.Second))))
	}
	// Duplicate IDs are ignored.
	require.NoError(t, db.RecordProfileUpdate(ctx, update("a", 99, base)))

	n, err := db.CountProfileUpdates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	recent, err := db.RecentProfileUpdates(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, update("c", 3, base.Add(2*time.Second)), recent[0])
	assert.Equal(t, "b", recent[1].ID)
}

func TestJournal_RunDrainsOnCancel(t *testing.T) {
	db := newTestDB(t)
	j := NewJournal(db)

	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		j.ProfileApplied(update(string(rune('a'+i)), float64(i), base.Add(time.Duration(i)*time.Millisecond)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	j.Run(ctx)

	n, err := db.CountProfileUpdates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Zero(t, j.Dropped())
}

func TestJournal_DropsWhenFull(t *testing.T) {
	db := newTestDB(t)
	j := NewJournal(db)

	for i := 0; i < journalQueue+3; i++ {
		j.ProfileApplied(ingest.Update{ID: "x"})
	}
	assert.Equal(t, 3, j.Dropped())
}

func TestAttachAdminRoutes(t *testing.T) {
	db := newTestDB(t)
	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, loopbackRequest(http.MethodGet, "/debug/tailsql/"))
	assert.NotEqual(t, http.StatusNotFound, w.Code, "tailsql should be mounted")
}
