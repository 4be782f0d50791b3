// Command gyrohookd runs the calibration ingest server: it keeps the stored
// gyroscope offsets, accepts live updates over TCP (and optionally a serial
// line), journals every applied profile and serves admin routes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/banshee-data/gyrohook/internal/config"
	"github.com/banshee-data/gyrohook/internal/control"
	"github.com/banshee-data/gyrohook/internal/db"
	"github.com/banshee-data/gyrohook/internal/ingest"
	"github.com/banshee-data/gyrohook/internal/monitoring"
	"github.com/banshee-data/gyrohook/internal/security"
	"github.com/banshee-data/gyrohook/internal/store"
	"github.com/banshee-data/gyrohook/internal/version"
)

// endpoints reports where a running daemon can be reached.
type endpoints struct {
	IngestPort int
	AdminAddr  string
}

func main() {
	f, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	if f.version {
		fmt.Println(version.String())
		return
	}

	cfg, err := f.serviceConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitoring.Logf("gyrohookd %s starting", version.String())
	if err := run(ctx, cfg, nil); err != nil {
		log.Fatalf("gyrohookd: %v", err)
	}
	monitoring.Logf("graceful shutdown complete")
}

// run starts every component and blocks until ctx is cancelled. When ready
// is non-nil it receives the bound endpoints once everything is serving.
func run(ctx context.Context, cfg *config.ServiceConfig, ready chan<- endpoints) error {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	st := store.New(store.Options{Dir: dataDir, Name: cfg.GetPrefsName()})
	for _, path := range []string{st.Path(), st.BootstrapPath()} {
		if err := security.WithinDir(path, dataDir); err != nil {
			return fmt.Errorf("invalid prefs name: %w", err)
		}
	}
	profile := st.Reload()
	if created, err := st.EnsureBootstrap(); err != nil {
		monitoring.Warnf("bootstrap settings: %v", err)
	} else if created {
		monitoring.Logf("created bootstrap settings at %s", st.BootstrapPath())
	}

	database, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer database.Close()

	var wg sync.WaitGroup
	journalCtx, stopJournal := context.WithCancel(context.Background())
	defer stopJournal()
	journal := db.NewJournal(database)
	wg.Add(1)
	go func() {
		defer wg.Done()
		journal.Run(journalCtx)
		monitoring.Logf("journal routine terminated")
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	feed := ingest.NewFeed()
	server := ingest.NewServer(ingest.Config{
		Host:          cfg.GetListenHost(),
		Store:         st,
		Observer:      ingest.Observers{feed, journal},
		Metrics:       ingest.NewMetrics(reg),
		PollInterval:  cfg.GetPollInterval(),
		MaxFrameBytes: cfg.GetMaxFrameBytes(),
	})
	svc := control.NewService(server)

	port := cfg.GetListenPort()
	if port == 0 {
		port = profile.ListenPort
	}
	if err := svc.StartServer(port); err != nil {
		stopJournal()
		wg.Wait()
		return fmt.Errorf("failed to start ingest server: %w", err)
	}

	if path := cfg.GetSerialPort(); path != "" {
		src, err := ingest.OpenSerialSource(path, ingest.PortOptions{BaudRate: cfg.GetSerialBaudRate()}, server.Applier())
		if err != nil {
			monitoring.Errorf("serial source disabled: %v", err)
		} else {
			defer src.Close()
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := src.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					monitoring.Errorf("serial source stopped: %v", err)
				}
				monitoring.Logf("serial routine terminated")
			}()
		}
	}

	mux := http.NewServeMux()
	svc.AttachAdminRoutes(mux, control.AdminOptions{
		Feed:         feed,
		History:      database,
		HistoryLimit: cfg.GetHistoryLimit(),
		Gatherer:     reg,
	})
	if err := database.AttachAdminRoutes(mux); err != nil {
		monitoring.Warnf("tailsql disabled: %v", err)
	}

	adminLn, err := net.Listen("tcp", cfg.GetAdminListen())
	if err != nil {
		svc.StopServer()
		server.Wait()
		stopJournal()
		wg.Wait()
		return fmt.Errorf("failed to listen for admin routes: %w", err)
	}
	httpServer := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httpServer.Serve(adminLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			monitoring.Errorf("admin server: %v", err)
		}
		monitoring.Logf("admin routine terminated")
	}()
	monitoring.Logf("admin routes on http://%s/debug/", adminLn.Addr())

	if ready != nil {
		ready <- endpoints{IngestPort: server.Port(), AdminAddr: adminLn.Addr().String()}
	}

	<-ctx.Done()
	monitoring.Logf("shutting down")

	svc.StopServer()
	server.Wait()
	// Closing the feed ends any open tail streams so Shutdown can finish.
	feed.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		monitoring.Warnf("admin server shutdown: %v", err)
	}

	stopJournal()
	wg.Wait()
	return nil
}
