// Package control is the operator surface over the ingest server and the
// calibration store: the calls a configuration screen makes, and the admin
// HTTP routes that expose the same calls.
package control

import (
	"github.com/banshee-data/gyrohook/internal/calibration"
	"github.com/banshee-data/gyrohook/internal/ingest"
	"github.com/banshee-data/gyrohook/internal/monitoring"
)

// Service drives one ingest server and the store it writes to.
type Service struct {
	server  *ingest.Server
	applier *ingest.Applier
}

// NewService wraps server. Profiles saved through the Service go through the
// server's applier, so observers see them with source "ui".
func NewService(server *ingest.Server) *Service {
	return &Service{server: server, applier: server.Applier()}
}

// StartServer starts listening on port. It returns nil, a
// *calibration.ValidationError, a *calibration.BindError or
// ingest.ErrAlreadyRunning. On success the port is saved into the profile.
func (s *Service) StartServer(port int) error {
	if err := s.server.Start(port); err != nil {
		return err
	}

	if s.applier.Current().ListenPort == port {
		return nil
	}
	setPort := func(p calibration.Profile) calibration.Profile {
		p.ListenPort = port
		return p
	}
	if _, _, err := s.applier.ApplyChange(setPort, ingest.Origin{Source: ingest.SourceUI}); err != nil {
		monitoring.Warnf("control: listening on %d but the port was not saved: %v", port, err)
	}
	return nil
}

// StopServer stops listening. Stopping a stopped server is a no-op.
func (s *Service) StopServer() {
	s.server.Stop()
}

// ServerRunning reports whether the ingest server is listening.
func (s *Service) ServerRunning() bool {
	return s.server.Running()
}

// BoundPort is the port the server is listening on, or 0.
func (s *Service) BoundPort() int {
	return s.server.Port()
}

// CurrentProfile returns the stored profile.
func (s *Service) CurrentProfile() calibration.Profile {
	return s.applier.Current()
}

// SaveProfile validates and stores p.
func (s *Service) SaveProfile(p calibration.Profile) error {
	_, _, err := s.applier.ApplyProfile(p, ingest.Origin{Source: ingest.SourceUI})
	return err
}
