package store

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/banshee-data/gyrohook/internal/calibration"
	"github.com/banshee-data/gyrohook/internal/fsutil"
)

// Preference keys of the durable snapshot. Readers in other processes look
// these names up directly, so they must not change.
const (
	KeyX    = "x"
	KeyY    = "y"
	KeyZ    = "z"
	KeyPort = "socket_port"
)

const prefsHeader = "<?xml version='1.0' encoding='utf-8' standalone='yes' ?>\n"

// prefsMap is the key/value preferences document:
//
//	<map>
//	    <float name="x" value="0.5" />
//	    <int name="socket_port" value="16384" />
//	</map>
//
// Entry kinds the profile does not use are ignored on read.
type prefsMap struct {
	XMLName xml.Name     `xml:"map"`
	Floats  []prefsEntry `xml:"float"`
	Ints    []prefsEntry `xml:"int"`
}

type prefsEntry struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// EncodePrefs renders a profile as a preferences document.
func EncodePrefs(p calibration.Profile) ([]byte, error) {
	doc := prefsMap{
		Floats: []prefsEntry{
			{Name: KeyX, Value: strconv.FormatFloat(p.OffsetX, 'g', -1, 64)},
			{Name: KeyY, Value: strconv.FormatFloat(p.OffsetY, 'g', -1, 64)},
			{Name: KeyZ, Value: strconv.FormatFloat(p.OffsetZ, 'g', -1, 64)},
		},
		Ints: []prefsEntry{
			{Name: KeyPort, Value: strconv.Itoa(p.ListenPort)},
		},
	}

	body, err := xml.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode preferences: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(prefsHeader)
	buf.Write(body)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// DecodePrefs parses a preferences document. Missing keys take the default
// profile's values, matching how the host preferences API answers lookups
// for absent keys.
func DecodePrefs(data []byte) (calibration.Profile, error) {
	var doc prefsMap
	if err := xml.Unmarshal(data, &doc); err != nil {
		return calibration.Profile{}, fmt.Errorf("failed to parse preferences: %w", err)
	}

	p := calibration.DefaultProfile()
	for _, e := range doc.Floats {
		var dst *float64
		switch e.Name {
		case KeyX:
			dst = &p.OffsetX
		case KeyY:
			dst = &p.OffsetY
		case KeyZ:
			dst = &p.OffsetZ
		default:
			continue
		}
		v, err := strconv.ParseFloat(e.Value, 64)
		if err != nil {
			return calibration.Profile{}, fmt.Errorf("failed to parse %q: %w", e.Name, err)
		}
		*dst = v
	}
	for _, e := range doc.Ints {
		if e.Name != KeyPort {
			continue
		}
		v, err := strconv.Atoi(e.Value)
		if err != nil {
			return calibration.Profile{}, fmt.Errorf("failed to parse %q: %w", e.Name, err)
		}
		p.ListenPort = v
	}
	return p, nil
}

// WritePrefsFile atomically writes a world-readable preferences file at path.
func WritePrefsFile(fsys fsutil.FileSystem, path string, p calibration.Profile) error {
	data, err := EncodePrefs(p)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(fsys, path, data, snapshotPerm); err != nil {
		return &calibration.PersistenceError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// ReadPrefsFile reads and decodes a preferences file at path.
func ReadPrefsFile(fsys fsutil.FileSystem, path string) (calibration.Profile, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return calibration.Profile{}, &calibration.PersistenceError{Op: "read", Path: path, Err: err}
	}
	p, err := DecodePrefs(data)
	if err != nil {
		return calibration.Profile{}, &calibration.PersistenceError{Op: "decode", Path: path, Err: err}
	}
	return p, nil
}
