package ingest

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/gyrohook/internal/calibration"
	"github.com/banshee-data/gyrohook/internal/timeutil"
)

// Source names where an applied profile came from.
type Source string

const (
	SourceSocket Source = "socket"
	SourceSerial Source = "serial"
	SourceUI     Source = "ui"
)

// ProfileStore is the part of the calibration store the ingest side needs.
type ProfileStore interface {
	Read() calibration.Profile
	Write(calibration.Profile) error
	// Update rewrites the current profile atomically with respect to Write.
	Update(func(calibration.Profile) calibration.Profile) (calibration.Profile, error)
}

// Update describes one profile that was durably applied.
type Update struct {
	ID      string              `json:"id"`
	Profile calibration.Profile `json:"profile"`
	Source  Source              `json:"source"`
	Remote  string              `json:"remote,omitempty"`
	ConnID  string              `json:"conn_id,omitempty"`
	At      time.Time           `json:"at"`
}

// Observer is told about every applied profile. Implementations must not
// block; they run on the connection handler.
type Observer interface {
	ProfileApplied(Update)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Update)

func (f ObserverFunc) ProfileApplied(u Update) { f(u) }

// Observers fans one update out to several observers in order.
type Observers []Observer

func (o Observers) ProfileApplied(u Update) {
	for _, obs := range o {
		if obs != nil {
			obs.ProfileApplied(u)
		}
	}
}

// Origin identifies the sender of a frame.
type Origin struct {
	Source Source
	Remote string
	ConnID string
}

// Applier turns frames into stored profiles. The socket handlers and the
// serial source share one Applier so both paths behave identically.
type Applier struct {
	store    ProfileStore
	observer Observer
	metrics  *Metrics
	clock    timeutil.Clock
}

// ApplierConfig configures an Applier. Only Store is required.
type ApplierConfig struct {
	Store    ProfileStore
	Observer Observer
	Metrics  *Metrics
	Clock    timeutil.Clock
}

// NewApplier creates an Applier.
func NewApplier(cfg ApplierConfig) *Applier {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Applier{
		store:    cfg.Store,
		observer: cfg.Observer,
		metrics:  cfg.Metrics,
		clock:    clock,
	}
}

// Current returns the stored profile without I/O.
func (a *Applier) Current() calibration.Profile {
	return a.store.Read()
}

// ApplyFrame parses frame and writes the offsets into the store, carrying the
// stored listen port over. A blank frame is ignored and reports ok=false with
// no error. Parse failures return a *calibration.ParseError and leave the
// store untouched; store failures are returned as-is.
func (a *Applier) ApplyFrame(frame string, from Origin) (u Update, ok bool, err error) {
	if strings.TrimSpace(frame) == "" {
		return Update{}, false, nil
	}

	offsets, err := calibration.ParseFrame(frame)
	if err != nil {
		a.metrics.frame(resultMalformed)
		return Update{}, false, err
	}
	return a.ApplyChange(func(p calibration.Profile) calibration.Profile {
		return p.WithOffsets(offsets)
	}, from)
}

// ApplyProfile validates and writes a complete profile, then notifies the
// observer.
func (a *Applier) ApplyProfile(p calibration.Profile, from Origin) (Update, bool, error) {
	if err := p.Validate(); err != nil {
		return Update{}, false, err
	}
	if err := a.store.Write(p); err != nil {
		a.metrics.frame(resultPersistError)
		return Update{}, false, err
	}
	return a.applied(p, from), true, nil
}

// ApplyChange rewrites the stored profile with change under the store's
// write lock, then notifies the observer. Use it for partial updates so a
// concurrent save of the other fields is never reverted.
func (a *Applier) ApplyChange(change func(calibration.Profile) calibration.Profile, from Origin) (Update, bool, error) {
	p, err := a.store.Update(change)
	if err != nil {
		var verr *calibration.ValidationError
		if !errors.As(err, &verr) {
			a.metrics.frame(resultPersistError)
		}
		return Update{}, false, err
	}
	return a.applied(p, from), true, nil
}

func (a *Applier) applied(p calibration.Profile, from Origin) Update {
	a.metrics.frame(resultApplied)

	u := Update{
		ID:      uuid.NewString(),
		Profile: p,
		Source:  from.Source,
		Remote:  from.Remote,
		ConnID:  from.ConnID,
		At:      a.clock.Now().UTC(),
	}
	if a.observer != nil {
		a.observer.ProfileApplied(u)
	}
	return u
}
