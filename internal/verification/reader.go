// Package verification reads completion signals written by the external
// verification pipeline. The engine never writes verifications; it only asks
// whether a habit was satisfied inside a resolved local window.
package verification

import (
	"fmt"
	"time"
)

// Store is the slice of storage the reader needs.
type Store interface {
	CountCompletedVerifications(habitID string, start, end time.Time) (int, error)
}

type Reader struct {
	store Store
}

func NewReader(store Store) *Reader {
	return &Reader{store: store}
}

// Satisfied reports whether at least one completed verification exists for
// the habit inside [start, end). Bounds are computed in the owner's timezone
// by the caller and compared against the store's absolute timestamps.
func (r *Reader) Satisfied(habitID string, start, end time.Time) (bool, error) {
	count, err := r.store.CountCompletedVerifications(habitID, start, end)
	if err != nil {
		return false, fmt.Errorf("failed to count verifications for habit %s: %w", habitID, err)
	}
	return count > 0, nil
}

// CompletionsOn returns the number of completed verifications inside the
// window. The weekly progress tracker uses this to keep a second completion
// on the same local day from counting twice.
func (r *Reader) CompletionsOn(habitID string, start, end time.Time) (int, error) {
	count, err := r.store.CountCompletedVerifications(habitID, start, end)
	if err != nil {
		return 0, fmt.Errorf("failed to count verifications for habit %s: %w", habitID, err)
	}
	return count, nil
}
