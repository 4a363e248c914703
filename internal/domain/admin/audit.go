package admin

import (
	"context"
	"encoding/json"

	"github.com/ptcearn/ptcearn-api/internal/middleware"
	"github.com/ptcearn/ptcearn-api/internal/pkg/logger"
)

// logAction writes an audit line for a successful admin mutation.
func logAction(ctx context.Context, action, entityType string, entityID any, newValue any) {
	newJSON, err := json.Marshal(newValue)
	if err != nil {
		newJSON = []byte("null")
	}

	logger.FromContext(ctx).Info().
		Int64("admin_id", middleware.GetAccountID(ctx)).
		Str("action", action).
		Str("entity_type", entityType).
		Interface("entity_id", entityID).
		RawJSON("new_value", newJSON).
		Msg("admin action")
}
