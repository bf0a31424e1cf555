// Package ledger holds the pure allocation arithmetic for an inventory
// batch: a map of store id -> allocation record. Every function is
// copy-on-write and never mutates its input, so callers can keep the old
// map around until their transaction commits.
package ledger

import (
	"errors"
	"sort"
	"strconv"
	"time"
)

var (
	ErrStoreIDRequired  = errors.New("store id is required")
	ErrActorRequired    = errors.New("actor id is required")
	ErrNegativeQuantity = errors.New("quantity cannot be negative")
	ErrReservedExceeds  = errors.New("reserved quantity cannot exceed allocated quantity")
)

// Allocation is one store's slice of a batch.
type Allocation struct {
	Allocated   int64     `json:"allocated"`
	Reserved    int64     `json:"reserved"`
	LastUpdated time.Time `json:"last_updated"`
	UpdatedBy   string    `json:"updated_by"`
}

// Map keys are decimal store ids (JSON object keys must be strings).
type Map map[string]Allocation

// Key converts a numeric store id to its map key.
func Key(storeID uint) string {
	return strconv.FormatUint(uint64(storeID), 10)
}

// ParseKey is the inverse of Key.
func ParseKey(k string) (uint, error) {
	id, err := strconv.ParseUint(k, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

// Update writes (or overwrites) the entry for storeID and returns a new map.
// Zero quantities are valid: they record depletion without dropping the
// entry before a confirming mutation.
func Update(m Map, storeID string, allocated, reserved int64, actorID string) (Map, error) {
	if storeID == "" {
		return nil, ErrStoreIDRequired
	}
	if actorID == "" {
		return nil, ErrActorRequired
	}
	if allocated < 0 || reserved < 0 {
		return nil, ErrNegativeQuantity
	}
	if reserved > allocated {
		return nil, ErrReservedExceeds
	}

	out := make(Map, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[storeID] = Allocation{
		Allocated:   allocated,
		Reserved:    reserved,
		LastUpdated: time.Now().UTC(),
		UpdatedBy:   actorID,
	}
	return out, nil
}

// Get never fails: a nil map, unknown store or empty id just reports absence.
func Get(m Map, storeID string) (Allocation, bool) {
	if m == nil || storeID == "" {
		return Allocation{}, false
	}
	a, ok := m[storeID]
	return a, ok
}

func Has(m Map, storeID string) bool {
	_, ok := Get(m, storeID)
	return ok
}

func TotalAllocated(m Map) int64 {
	var total int64
	for _, a := range m {
		total += a.Allocated
	}
	return total
}

func TotalReserved(m Map) int64 {
	var total int64
	for _, a := range m {
		total += a.Reserved
	}
	return total
}

// StoreIDs returns the allocated store keys in stable order.
func StoreIDs(m Map) []string {
	ids := make([]string, 0, len(m))
	for k := range m {
		ids = append(ids, k)
	}
	sort.Strings(ids)
	return ids
}

// Remove drops the entry for storeID. An empty id returns the map unchanged,
// a nil map returns an empty one.
func Remove(m Map, storeID string) Map {
	if m == nil {
		return Map{}
	}
	if storeID == "" {
		return m
	}
	out := make(Map, len(m))
	for k, v := range m {
		if k != storeID {
			out[k] = v
		}
	}
	return out
}

// ValidateTotal reports whether the map fits inside the batch total.
// Under-allocation is tolerated (mid-migration batches), over-allocation
// never is.
func ValidateTotal(m Map, batchTotal int64) bool {
	return TotalAllocated(m) <= batchTotal
}
