// Package hierarchy decides which stores may move stock between each other
// inside a tenant's MAIN / REGIONAL / SUB_REGIONAL tree.
package hierarchy

import (
	"fmt"

	"stockroom-backend/internal/models"
)

// Decision carries the verdict and, when denied, a human-readable reason.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(format string, args ...any) Decision {
	return Decision{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// CanTransfer decides whether from may push stock to to.
//   - MAIN may transfer to any store in the same tenant.
//   - REGIONAL may transfer only to its direct SUB_REGIONAL children.
//   - SUB_REGIONAL may transfer only to a sibling under the same REGIONAL parent.
func CanTransfer(from, to *models.Store) Decision {
	if from == nil || to == nil {
		return deny("both stores must exist")
	}
	if from.TenantID != to.TenantID {
		return deny("stores belong to different tenants")
	}
	if from.ID == to.ID {
		return deny("source and target store are the same")
	}

	switch from.Classification {
	case models.StoreMain:
		return allow()
	case models.StoreRegional:
		if to.Classification == models.StoreSubRegional && to.ParentID != nil && *to.ParentID == from.ID {
			return allow()
		}
		return deny("regional store %q may only transfer to its own sub-regional stores", from.Name)
	case models.StoreSubRegional:
		if to.Classification == models.StoreSubRegional &&
			from.ParentID != nil && to.ParentID != nil && *from.ParentID == *to.ParentID {
			return allow()
		}
		return deny("sub-regional store %q may only transfer to siblings under the same regional store", from.Name)
	default:
		return deny("unknown store classification %q", from.Classification)
	}
}

// CanRequest decides whether requester may ask source for stock: only the
// direct parent or the tenant's MAIN store can be asked.
func CanRequest(requester, source *models.Store) Decision {
	if requester == nil || source == nil {
		return deny("both stores must exist")
	}
	if requester.TenantID != source.TenantID {
		return deny("stores belong to different tenants")
	}
	if requester.ID == source.ID {
		return deny("a store cannot request stock from itself")
	}
	if source.Classification == models.StoreMain {
		return allow()
	}
	if requester.ParentID != nil && *requester.ParentID == source.ID {
		return allow()
	}
	return deny("store %q may only request stock from its parent or the main store", requester.Name)
}
