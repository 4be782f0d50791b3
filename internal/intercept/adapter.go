// Package intercept is the consuming side of the calibration store: the
// callback a host runs on every raw sensor event before the event reaches
// its listeners. It shares no memory with the ingest server and picks up
// new offsets by reloading the durable snapshot on every gyroscope event.
package intercept

import (
	"github.com/banshee-data/gyrohook/internal/calibration"
	"github.com/banshee-data/gyrohook/internal/monitoring"
)

// SensorKind is the host's sensor type constant.
type SensorKind int

const (
	KindUnknown       SensorKind = 0
	KindAccelerometer SensorKind = 1
	KindMagnetometer  SensorKind = 2
	KindGyroscope     SensorKind = 4
)

// SensorKindLookup maps a sensor handle to its kind.
type SensorKindLookup interface {
	KindOf(sensorID int) (SensorKind, error)
}

// SensorKindLookupFunc adapts a function to SensorKindLookup.
type SensorKindLookupFunc func(sensorID int) (SensorKind, error)

func (f SensorKindLookupFunc) KindOf(sensorID int) (SensorKind, error) { return f(sensorID) }

// ProfileSource is the store as seen from the interception side.
type ProfileSource interface {
	Reload() calibration.Profile
	EnsureReadable() error
}

// Adapter adds the stored gyroscope offsets to sample vectors in place.
type Adapter struct {
	sensors SensorKindLookup
	source  ProfileSource
}

// New builds the adapter the host callback captures.
func New(sensors SensorKindLookup, source ProfileSource) *Adapter {
	return &Adapter{sensors: sensors, source: source}
}

// OnSampleEvent adjusts values in place when sensorID is a gyroscope. It
// never fails and never panics into the caller: any problem leaves the
// vector untouched for this event.
func (a *Adapter) OnSampleEvent(sensorID int, values []float32) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Errorf("intercept: sample event for sensor %d: %v", sensorID, r)
		}
	}()

	kind, err := a.sensors.KindOf(sensorID)
	if err != nil || kind != KindGyroscope {
		return
	}
	if len(values) < 3 {
		return
	}

	o := a.currentOffsets()
	values[0] += float32(o.X)
	values[1] += float32(o.Y)
	values[2] += float32(o.Z)
}

// currentOffsets reloads the snapshot. All-zero offsets are indistinguishable
// from a snapshot that could not be read, so on zero the permissions are
// re-asserted and the snapshot reloaded once more before zero is accepted.
func (a *Adapter) currentOffsets() calibration.Offsets {
	o := a.source.Reload().Offsets()
	if !o.IsZero() {
		return o
	}
	if err := a.source.EnsureReadable(); err != nil {
		monitoring.Logf("intercept: %v", err)
	}
	return a.source.Reload().Offsets()
}
