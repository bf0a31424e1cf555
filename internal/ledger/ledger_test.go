package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateValidation(t *testing.T) {
	tests := []struct {
		name      string
		storeID   string
		allocated int64
		reserved  int64
		actor     string
		wantErr   error
	}{
		{"empty store id", "", 10, 0, "u1", ErrStoreIDRequired},
		{"empty actor", "1", 10, 0, "", ErrActorRequired},
		{"negative allocated", "1", -1, 0, "u1", ErrNegativeQuantity},
		{"negative reserved", "1", 10, -1, "u1", ErrNegativeQuantity},
		{"reserved over allocated", "1", 5, 6, "u1", ErrReservedExceeds},
		{"zero values are valid", "1", 0, 0, "u1", nil},
		{"happy path", "1", 10, 3, "u1", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Update(nil, tt.storeID, tt.allocated, tt.reserved, tt.actor)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			a, ok := Get(out, tt.storeID)
			require.True(t, ok)
			assert.Equal(t, tt.allocated, a.Allocated)
			assert.Equal(t, tt.reserved, a.Reserved)
			assert.Equal(t, tt.actor, a.UpdatedBy)
			assert.False(t, a.LastUpdated.IsZero())
		})
	}
}

func TestUpdateDoesNotMutateInput(t *testing.T) {
	m := Map{"1": {Allocated: 100, Reserved: 10, UpdatedBy: "seed"}}

	out, err := Update(m, "1", 75, 10, "u2")
	require.NoError(t, err)

	assert.Equal(t, int64(100), m["1"].Allocated, "input map must be unchanged")
	assert.Equal(t, "seed", m["1"].UpdatedBy)
	assert.Equal(t, int64(75), out["1"].Allocated)
}

func TestUpdateThenRemove(t *testing.T) {
	m := Map{"2": {Allocated: 40}}

	updated, err := Update(m, "7", 25, 0, "u1")
	require.NoError(t, err)

	removed := Remove(updated, "7")
	assert.False(t, Has(removed, "7"))
	assert.Equal(t, m["2"], removed["2"], "other entries keep their pre-update values")
}

func TestGetAbsent(t *testing.T) {
	_, ok := Get(nil, "1")
	assert.False(t, ok)

	_, ok = Get(Map{}, "1")
	assert.False(t, ok)

	_, ok = Get(Map{"1": {Allocated: 5}}, "")
	assert.False(t, ok)
}

func TestTotals(t *testing.T) {
	assert.Equal(t, int64(0), TotalAllocated(nil))
	assert.Equal(t, int64(0), TotalReserved(Map{}))
	assert.Empty(t, StoreIDs(nil))

	m := Map{
		"1": {Allocated: 100, Reserved: 10},
		"2": {Allocated: 25, Reserved: 5},
		"3": {Allocated: 0, Reserved: 0},
	}
	assert.Equal(t, int64(125), TotalAllocated(m))
	assert.Equal(t, int64(15), TotalReserved(m))
	assert.Equal(t, []string{"1", "2", "3"}, StoreIDs(m))

	var sum int64
	for _, id := range StoreIDs(m) {
		a, _ := Get(m, id)
		sum += a.Allocated
	}
	assert.Equal(t, TotalAllocated(m), sum)
}

func TestRemoveEdgeCases(t *testing.T) {
	assert.NotNil(t, Remove(nil, "1"))
	assert.Empty(t, Remove(nil, "1"))

	m := Map{"1": {Allocated: 5}}
	same := Remove(m, "")
	assert.Equal(t, m, same)
}

func TestValidateTotal(t *testing.T) {
	m := Map{"1": {Allocated: 60}, "2": {Allocated: 40}}

	assert.True(t, ValidateTotal(m, 100))
	assert.True(t, ValidateTotal(m, 120), "under-allocation is tolerated")
	assert.False(t, ValidateTotal(m, 99))
	assert.True(t, ValidateTotal(nil, 0))
}

func TestKeyRoundTrip(t *testing.T) {
	k := Key(42)
	assert.Equal(t, "42", k)

	id, err := ParseKey(k)
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)

	_, err = ParseKey("not-a-store")
	assert.Error(t, err)
}
