package middleware

import (
	"context"
	"net/http"
	"time"

	"collabchat/internal/auth"
	"collabchat/internal/errors"
	"collabchat/internal/httputil"
	"collabchat/internal/privacy"
	"collabchat/internal/service"
	"collabchat/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

type ctxKey int

const userIDKey ctxKey = iota

// Authenticator resolves the caller from an Authorization header value
type Authenticator interface {
	Verify(ctx context.Context, header string) (*auth.Identity, error)
}

// WithUserID stores the authenticated caller on ctx
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFrom returns the caller set by Authenticate
func UserIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// Authenticate rejects requests without a valid bearer token with 401
func Authenticate(authn Authenticator, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := authn.Verify(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				if errors.GetCode(err) != errors.ErrCodeAuthentication {
					err = errors.Wrap(err, errors.ErrCodeAuthentication, "authentication failed").
						WithUserMessage("Authentication failed")
				}
				logger.WithFields(logrus.Fields{
					service.LogFieldRequestID: tracing.GetRequestID(r.Context()),
					service.LogFieldErrorCode: errors.GetCode(err),
				}).Debug("Rejected unauthenticated request")
				w.Header().Set("WWW-Authenticate", "Bearer")
				httputil.WriteError(w, r, err)
				return
			}

			ctx := WithUserID(r.Context(), identity.UserID)
			ctx = errors.WithUserID(ctx, privacy.MaskUserID(identity.UserID))
			tracing.AddSpanAttributes(ctx, attribute.String("enduser.id", privacy.MaskUserID(identity.UserID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LastSeenWriter records activity for presence
type LastSeenWriter interface {
	SetLastSeen(ctx context.Context, userID string, ts time.Time) error
}

// FeatureChecker reports runtime feature flags
type FeatureChecker interface {
	IsEnabled(name string) bool
}

// TouchPresence records last seen for the authenticated caller. Failures are
// logged and never fail the request.
func TouchPresence(presence LastSeenWriter, flags FeatureChecker, flag string, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if presence != nil && (flags == nil || flags.IsEnabled(flag)) {
				if userID, ok := UserIDFrom(r.Context()); ok {
					if err := presence.SetLastSeen(r.Context(), userID, time.Now()); err != nil {
						logger.WithError(err).WithField(service.LogFieldUserID, privacy.MaskUserID(userID)).
							Warn("Failed to record last seen")
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
