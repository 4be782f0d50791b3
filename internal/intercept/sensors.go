package intercept

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownSensor is returned for a handle the host never listed.
var ErrUnknownSensor = errors.New("unknown sensor handle")

// Sensor is one entry of the host's sensor list.
type Sensor struct {
	Handle int        `json:"handle"`
	Type   SensorKind `json:"type"`
	Name   string     `json:"name"`
}

// SensorList is a SensorKindLookup built from the host's sensor list. The
// host may re-enumerate sensors at any time, so Set swaps the whole table.
type SensorList struct {
	mu   sync.RWMutex
	byID map[int]Sensor
}

// NewSensorList indexes sensors by handle. A later duplicate handle wins.
func NewSensorList(sensors ...Sensor) *SensorList {
	l := &SensorList{}
	l.Set(sensors)
	return l
}

// Set replaces the known sensors.
func (l *SensorList) Set(sensors []Sensor) {
	byID := make(map[int]Sensor, len(sensors))
	for _, s := range sensors {
		byID[s.Handle] = s
	}
	l.mu.Lock()
	l.byID = byID
	l.mu.Unlock()
}

// KindOf implements SensorKindLookup.
func (l *SensorList) KindOf(sensorID int) (SensorKind, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.byID[sensorID]
	if !ok {
		return KindUnknown, fmt.Errorf("%w %d", ErrUnknownSensor, sensorID)
	}
	return s.Type, nil
}
