package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/upb/llm-gateway/internal/runtimeconfig"
	"github.com/upb/llm-gateway/services"
	"github.com/upb/llm-gateway/utils"
	"go.uber.org/zap"
)

// Authenticator resolves inbound credentials to an application. Two paths:
// X-API-Key looked up in the config snapshot, or a Bearer HS256 service
// token whose app_id claim names the application.
type Authenticator struct {
	snapshots *runtimeconfig.Store
	jwtSecret []byte
	logger    *zap.Logger
}

func NewAuthenticator(snapshots *runtimeconfig.Store, jwtSecret string, logger *zap.Logger) *Authenticator {
	return &Authenticator{
		snapshots: snapshots,
		jwtSecret: []byte(jwtSecret),
		logger:    logger,
	}
}

// Middleware authenticates the request and stores the application in the
// request context. Unauthenticated requests are rejected here; disabled
// applications are rejected by the pipeline so the denial is traced.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := a.snapshots.Current()

		if key := r.Header.Get("X-API-Key"); key != "" {
			app := snap.ApplicationByKey(key)
			if app == nil {
				utils.WriteDomainError(w, services.NewInvalidAPIKey())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithApplication(r.Context(), app)))
			return
		}

		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			appID, err := a.parseServiceToken(strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				a.logger.Debug("service token rejected", zap.Error(err))
				utils.WriteDomainError(w, services.NewInvalidAPIKey())
				return
			}
			app := snap.Application(appID)
			if app == nil {
				utils.WriteDomainError(w, services.NewInvalidAPIKey())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithApplication(r.Context(), app)))
			return
		}

		utils.WriteDomainError(w, services.NewAuthRequired())
	})
}

func (a *Authenticator) parseServiceToken(raw string) (string, error) {
	if len(a.jwtSecret) == 0 {
		return "", jwt.ErrTokenUnverifiable
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.jwtSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}
	appID, _ := claims["app_id"].(string)
	if appID == "" {
		return "", jwt.ErrTokenInvalidClaims
	}
	return appID, nil
}
