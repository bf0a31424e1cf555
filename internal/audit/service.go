package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"stockroom-backend/internal/database"
	"stockroom-backend/internal/models"
)

type LogOptions struct {
	StoreID     *uint
	UserID      uint
	UserName    string
	EntityType  string
	EntityID    string
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

// WriteLog appends one audit entry. The log is strictly append-only; the
// tenant id comes from the operation's scope like every other write.
func WriteLog(ctx context.Context, opts LogOptions) error {
	// jsonb columns need the JSON null literal, not an empty string.
	beforeStr := "null"
	afterStr := "null"

	if opts.Before != nil {
		if b, err := json.Marshal(opts.Before); err == nil {
			beforeStr = string(b)
		}
	}
	if opts.After != nil {
		if b, err := json.Marshal(opts.After); err == nil {
			afterStr = string(b)
		}
	}

	entry := models.AuditLog{
		StoreID:     opts.StoreID,
		UserID:      opts.UserID,
		UserName:    opts.UserName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  beforeStr,
		AfterData:   afterStr,
	}

	if err := database.DB.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("audit log could not be written: %w", err)
	}

	return nil
}
