package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gyrohook/internal/calibration"
	"github.com/banshee-data/gyrohook/internal/config"
	"github.com/banshee-data/gyrohook/internal/control"
	"github.com/banshee-data/gyrohook/internal/ingest"
	"github.com/banshee-data/gyrohook/internal/security"
	"github.com/banshee-data/gyrohook/internal/store"
	"github.com/banshee-data/gyrohook/internal/testutil"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestParseFlags_OverridesConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "gyrohookd.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"data_dir": "/srv/gyro", "listen_port": 20000, "history_limit": 10}`), 0644))

	fs := flag.NewFlagSet("gyrohookd", flag.ContinueOnError)
	f, err := parseFlags(fs, []string{"-config", cfgPath, "-port", "21000", "-serial-port", "/dev/ttyUSB0"})
	require.NoError(t, err)

	cfg, err := f.serviceConfig()
	require.NoError(t, err)
	assert.Equal(t, "/srv/gyro", cfg.GetDataDir())
	assert.Equal(t, 21000, cfg.GetListenPort(), "flag wins over file")
	assert.Equal(t, "/dev/ttyUSB0", cfg.GetSerialPort())
	assert.Equal(t, 10, cfg.GetHistoryLimit())
	assert.Equal(t, "127.0.0.1:8089", cfg.GetAdminListen(), "unset flags keep defaults")
}

func TestParseFlags_InvalidPort(t *testing.T) {
	fs := flag.NewFlagSet("gyrohookd", flag.ContinueOnError)
	f, err := parseFlags(fs, []string{"-port", "22"})
	require.NoError(t, err)

	_, err = f.serviceConfig()
	assert.Error(t, err)
}

func TestParseFlags_Version(t *testing.T) {
	fs := flag.NewFlagSet("gyrohookd", flag.ContinueOnError)
	f, err := parseFlags(fs, []string{"-version"})
	require.NoError(t, err)
	assert.True(t, f.version)
}

func TestRun_EndToEnd(t *testing.T) {
	testutil.CaptureLogs(t)
	dir := t.TempDir()
	port := testutil.FreePort(t)

	cfg := &config.ServiceConfig{
		DataDir:     strPtr(dir),
		ListenHost:  strPtr("127.0.0.1"),
		ListenPort:  intPtr(port),
		AdminListen: strPtr("127.0.0.1:0"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan endpoints, 1)
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, ready) }()

	var ep endpoints
	select {
	case ep = <-ready:
	case err := <-done:
		t.Fatalf("run exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon never became ready")
	}
	assert.Equal(t, port, ep.IngestPort)

	// Bootstrap settings were created and the bound port saved.
	reader := store.New(store.Options{Dir: dir})
	b, err := reader.ReadBootstrap()
	require.NoError(t, err)
	assert.Equal(t, calibration.DefaultListenPort, b.SocketPort)
	assert.Equal(t, port, reader.Reload().ListenPort)

	conn := testutil.Dial(t, ep.IngestPort)
	testutil.WriteLine(t, conn, "0.5,-0.25,0.125")
	testutil.Eventually(t, 2*time.Second, func() bool {
		return reader.Reload().Offsets() == calibration.Offsets{X: 0.5, Y: -0.25, Z: 0.125}
	}, "frame reached the durable snapshot")

	req, err := http.NewRequest(http.MethodGet, "http://"+ep.AdminAddr+"/debug/calibration", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var status control.Status
	require.NoError(t, json.Unmarshal(body, &status))
	assert.True(t, status.Running)
	assert.Equal(t, 0.5, status.Profile.OffsetX)

	testutil.Eventually(t, 2*time.Second, func() bool {
		resp, err := http.Get("http://" + ep.AdminAddr + "/debug/calibration/history")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var updates []ingest.Update
		if err := json.NewDecoder(resp.Body).Decode(&updates); err != nil {
			return false
		}
		// The port save and the socket frame.
		return len(updates) == 2 && updates[0].Source == ingest.SourceSocket
	}, "journal holds both updates")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not shut down")
	}
}

func TestRun_BindFailure(t *testing.T) {
	testutil.CaptureLogs(t)
	dir := t.TempDir()

	cfg := &config.ServiceConfig{
		DataDir:     strPtr(dir),
		ListenHost:  strPtr("127.0.0.1"),
		ListenPort:  intPtr(80),
		AdminListen: strPtr("127.0.0.1:0"),
	}
	err := run(context.Background(), cfg, nil)
	var verr *calibration.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestRun_PrefsNameEscapesDataDir(t *testing.T) {
	testutil.CaptureLogs(t)
	cfg := &config.ServiceConfig{
		DataDir:   strPtr(t.TempDir()),
		PrefsName: strPtr("../../../etc/gyro"),
	}
	err := run(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, security.ErrPathEscapes)
}
