package auth

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SessionCookieName is the cookie set by the authentication provider.
const SessionCookieName = "gatehouse_session"

// SessionVerifier looks up session rows written by the external
// authentication provider. It never issues or refreshes sessions.
type SessionVerifier struct {
	db *sql.DB
}

// NewSessionVerifier creates a new session verifier
func NewSessionVerifier(db *sql.DB) *SessionVerifier {
	return &SessionVerifier{db: db}
}

// GetSession resolves the session for an inbound request. It returns
// (nil, nil) when no token is present, the token is unknown, or the session
// has expired; only storage failures surface as errors.
func (v *SessionVerifier) GetSession(ctx context.Context, r *http.Request) (*Session, error) {
	token := extractToken(r)
	if token == "" {
		return nil, nil
	}

	query := `
		SELECT id, token, user_id, expires_at, ip_address, user_agent, created_at, updated_at
		FROM sessions
		WHERE token = $1
	`

	var sess Session
	var ip, ua sql.NullString
	err := v.db.QueryRowContext(ctx, query, token).Scan(
		&sess.ID,
		&sess.Token,
		&sess.UserID,
		&sess.ExpiresAt,
		&ip,
		&ua,
		&sess.CreatedAt,
		&sess.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}

	if !sess.ExpiresAt.After(time.Now()) {
		return nil, nil
	}

	sess.IPAddress = ip.String
	sess.UserAgent = ua.String
	return &sess, nil
}

// PurgeExpired deletes sessions past their expiry, returning the number of
// rows removed. Run periodically; the provider does not clean up after itself.
func (v *SessionVerifier) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := v.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// extractToken pulls the session token from the Authorization header
// ("Bearer <token>") or the session cookie, in that order. A non-Bearer
// Authorization header is ignored rather than masking the cookie.
func extractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}
