package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type contextKey string

const TenantIDKey contextKey = "tenant_id"

// DefaultTenantID is used when multi-tenancy is disabled: DICOMweb has no
// notion of tenants, so every request is scoped to this fixed UUID.
var DefaultTenantID = uuid.Nil

// TenantID builds a middleware extracting the tenant ID from the
// X-Tenant-ID header. When required is false (multi-tenancy disabled),
// a missing or absent header falls back to DefaultTenantID instead of
// failing the request.
func TenantID(required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantIDStr := r.Header.Get("X-Tenant-ID")
			if tenantIDStr == "" {
				if !required {
					ctx := context.WithValue(r.Context(), TenantIDKey, DefaultTenantID)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				log.Warn().Msg("Missing X-Tenant-ID header")
				http.Error(w, "X-Tenant-ID header is required", http.StatusBadRequest)
				return
			}

			tenantID, err := uuid.Parse(tenantIDStr)
			if err != nil {
				log.Warn().Err(err).Str("tenant_id", tenantIDStr).Msg("Invalid tenant ID")
				http.Error(w, "Invalid X-Tenant-ID format", http.StatusBadRequest)
				return
			}

			ctx := context.WithValue(r.Context(), TenantIDKey, tenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetTenantID extracts tenant ID from context
func GetTenantID(ctx context.Context) (uuid.UUID, bool) {
	tenantID, ok := ctx.Value(TenantIDKey).(uuid.UUID)
	return tenantID, ok
}
