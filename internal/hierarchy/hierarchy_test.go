package hierarchy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"stockroom-backend/internal/models"
)

func ptr(v uint) *uint { return &v }

// One tenant, full tree: main(1) -> regional A(2), regional B(3);
// A -> sub A1(4), sub A2(5); B -> sub B1(6).
var (
	main1 = &models.Store{ID: 1, TenantID: 1, Name: "main", Classification: models.StoreMain}
	regA  = &models.Store{ID: 2, TenantID: 1, Name: "region-a", Classification: models.StoreRegional, ParentID: ptr(1)}
	regB  = &models.Store{ID: 3, TenantID: 1, Name: "region-b", Classification: models.StoreRegional, ParentID: ptr(1)}
	subA1 = &models.Store{ID: 4, TenantID: 1, Name: "sub-a1", Classification: models.StoreSubRegional, ParentID: ptr(2)}
	subA2 = &models.Store{ID: 5, TenantID: 1, Name: "sub-a2", Classification: models.StoreSubRegional, ParentID: ptr(2)}
	subB1 = &models.Store{ID: 6, TenantID: 1, Name: "sub-b1", Classification: models.StoreSubRegional, ParentID: ptr(3)}

	otherTenantMain = &models.Store{ID: 7, TenantID: 2, Name: "other-main", Classification: models.StoreMain}
)

func TestCanTransfer(t *testing.T) {
	tests := []struct {
		name    string
		from    *models.Store
		to      *models.Store
		allowed bool
	}{
		{"main to regional", main1, regA, true},
		{"main to sub-regional", main1, subB1, true},
		{"main to other tenant", main1, otherTenantMain, false},
		{"regional to own child", regA, subA1, true},
		{"regional to other regional's child", regA, subB1, false},
		{"regional to main", regA, main1, false},
		{"regional to regional", regA, regB, false},
		{"sub to sibling", subA1, subA2, true},
		{"sub to cousin", subA1, subB1, false},
		{"sub to regional", subA1, regA, false},
		{"sub to main", subA1, main1, false},
		{"store to itself", regA, regA, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := CanTransfer(tt.from, tt.to)
			assert.Equal(t, tt.allowed, d.Allowed)
			if !tt.allowed {
				assert.NotEmpty(t, d.Reason)
			}
		})
	}
}

func TestCanRequest(t *testing.T) {
	tests := []struct {
		name      string
		requester *models.Store
		source    *models.Store
		allowed   bool
	}{
		{"regional from main", regA, main1, true},
		{"sub from its parent", subA1, regA, true},
		{"sub from main", subA1, main1, true},
		{"sub from other regional", subA1, regB, false},
		{"sub from cousin under different parent", subA1, subB1, false},
		{"sub from sibling", subA1, subA2, false},
		{"cross tenant", regA, otherTenantMain, false},
		{"from itself", regA, regA, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := CanRequest(tt.requester, tt.source)
			assert.Equal(t, tt.allowed, d.Allowed)
		})
	}
}

func TestNilStores(t *testing.T) {
	assert.False(t, CanTransfer(nil, main1).Allowed)
	assert.False(t, CanTransfer(main1, nil).Allowed)
	assert.False(t, CanRequest(nil, nil).Allowed)
}
