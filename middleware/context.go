package middleware

import (
	"context"

	"github.com/upb/llm-gateway/models"
)

type contextKey string

const applicationKey contextKey = "application"

// WithApplication attaches the authenticated application to the context.
func WithApplication(ctx context.Context, app *models.Application) context.Context {
	return context.WithValue(ctx, applicationKey, app)
}

// ApplicationFrom returns the authenticated application, or nil when the
// request did not pass authentication.
func ApplicationFrom(ctx context.Context) *models.Application {
	app, _ := ctx.Value(applicationKey).(*models.Application)
	return app
}
