package services

import "context"

// ensureContext guards against nil contexts reaching gorm.
func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
