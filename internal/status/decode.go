// Package status decodes the RF Music page status object and keeps the
// latest snapshot for the presence mapper.
package status

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/genricoloni/rfpresence/internal/domain"
)

// Decode parses a status document. A JSON null or empty body yields a nil
// status. Any other well-formed document yields a status: fields that are
// missing or of the wrong kind are left at their zero value, and a value
// that is not an object carries no fields at all. Only bytes that are not
// JSON are an error.
func Decode(data []byte) (*domain.PlayerStatus, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	// Numbers stay textual so one out of range value cannot fail the document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("failed to decode status: trailing data after document")
	}

	obj, _ := raw.(map[string]any)
	return &domain.PlayerStatus{
		IsPlaying:   truthy(obj["isPlaying"]),
		Title:       str(obj["title"]),
		Artist:      str(obj["artist"]),
		AlbumArt:    str(obj["albumArt"]),
		CurrentTime: number(obj["currentTime"]),
		Duration:    number(obj["duration"]),
	}, nil
}

// truthy follows the page's own notion of a set flag
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case json.Number:
		f, err := strconv.ParseFloat(t.String(), 64)
		// Out of range magnitudes parse as ±Inf with an error, still non-zero
		return (err == nil || math.IsInf(f, 0)) && f != 0 && !math.IsNaN(f)
	case float64:
		return t != 0 && !math.IsNaN(t)
	case string:
		return t != ""
	case nil:
		return false
	default:
		// objects and arrays
		return true
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// number returns v as a finite float, nil for anything else
func number(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case json.Number:
		var err error
		if f, err = strconv.ParseFloat(t.String(), 64); err != nil {
			return nil
		}
	case float64:
		f = t
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
