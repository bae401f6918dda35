package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/platform/audit"
	"github.com/carelink/carelink/internal/platform/auth"
)

// Audit returns echo middleware that records an access-trail entry for every
// /api/v1/* request: who called which resource, the action type, and the
// response status. Entries go to the audit recorder when one is provided and
// always to the structured log.
func Audit(logger zerolog.Logger, recorder audit.Recorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if !strings.HasPrefix(path, "/api/v1/") {
				return next(c)
			}

			// Execute the handler first so we capture the response status.
			err := next(c)

			resource := resourceFromPath(path)
			action := httpMethodToAction(req.Method)
			status := c.Response().Status

			entry := audit.Entry{
				Action:   "http." + action,
				Subject:  resource,
				Severity: audit.SeverityInfo,
				Message:  req.Method + " " + path,
				Metadata: map[string]any{
					"method": req.Method,
					"path":   path,
					"status": status,
				},
				IPAddress:  c.RealIP(),
				RecordedAt: time.Now().UTC(),
			}
			if p, ok := auth.PrincipalFromContext(req.Context()); ok {
				entry.ActorID = p.ID
				entry.ActorName = p.Name
			}
			if status >= http.StatusInternalServerError {
				entry.Severity = audit.SeverityWarning
			}

			if recorder != nil {
				recorder.Record(req.Context(), entry)
			}

			logger.Info().
				Str("type", "access_audit").
				Str("actor_id", entry.ActorID.String()).
				Str("resource", resource).
				Str("action", action).
				Str("method", req.Method).
				Str("path", path).
				Int("status", status).
				Str("remote_ip", entry.IPAddress).
				Msg("api_access")

			return err
		}
	}
}

// httpMethodToAction maps HTTP methods to audit action codes.
func httpMethodToAction(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return "read"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// resourceFromPath parses the first path segment under /api/v1/.
//
//	/api/v1/chat/rooms/123 -> chat
//	/api/v1/broadcasts     -> broadcasts
func resourceFromPath(path string) string {
	segments := strings.Split(strings.TrimPrefix(path, "/api/v1/"), "/")
	if len(segments) > 0 && segments[0] != "" {
		return segments[0]
	}
	return "unknown"
}
