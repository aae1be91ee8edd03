package index

import (
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// ErrMissingPath indicates a raw entry without the required path field.
var ErrMissingPath = errors.New("entry has no path")

// InvalidEntry records one raw entry that failed to decode during a listing.
//
// Listings treat malformed records as partial success: the well-formed
// entries are returned alongside the invalid ones instead of failing the
// whole operation.
type InvalidEntry struct {
	// Position is the zero-based position of the entry in the raw listing.
	Position int

	// Reason describes why decoding failed.
	Reason string

	// Raw is the offending record, kept for diagnostics.
	Raw RawEntry
}

func (e InvalidEntry) String() string {
	return fmt.Sprintf("entry %d: %s", e.Position, e.Reason)
}

// Decode converts a raw catalog record into an Item.
//
// Decoding is strict about the path field (required, non-empty string) and
// about field types: a record carrying, say, a string where a bool is
// expected fails as a whole. WeaklyTypedInput is deliberately off - a live
// index that starts emitting wrong types is a condition worth surfacing, not
// papering over.
func Decode(raw RawEntry) (Item, error) {
	var item Item

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     &item,
		DecodeHook: mapstructure.StringToTimeHookFunc("2006-01-02T15:04:05Z07:00"),
	})
	if err != nil {
		return Item{}, fmt.Errorf("failed to build entry decoder: %w", err)
	}

	if err := dec.Decode(map[string]any(raw)); err != nil {
		return Item{}, fmt.Errorf("failed to decode entry: %w", err)
	}

	if item.Path == "" {
		return Item{}, ErrMissingPath
	}

	return item, nil
}

// DecodeAll decodes every entry of a raw listing independently.
//
// Returns the well-formed items and a side list of the entries that failed,
// in listing order. A fully malformed listing yields zero items and one
// InvalidEntry per record - never an error.
func DecodeAll(entries []RawEntry) ([]Item, []InvalidEntry) {
	items := make([]Item, 0, len(entries))
	var invalid []InvalidEntry

	for i, raw := range entries {
		item, err := Decode(raw)
		if err != nil {
			invalid = append(invalid, InvalidEntry{
				Position: i,
				Reason:   err.Error(),
				Raw:      raw,
			})
			continue
		}
		items = append(items, item)
	}

	return items, invalid
}
