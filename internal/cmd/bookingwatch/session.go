package bookingwatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var errUserRequired = errors.New("a user id or session token is required")

// resolveUserID prefers an explicit user id and otherwise reads the subject
// of the session token. The token is issued by the auth provider and is not
// verified here; the backend enforces access.
func resolveUserID(userID, token string) (string, error) {
	if id := strings.TrimSpace(userID); id != "" {
		return id, nil
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errUserRequired
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parse session token: %w", err)
	}
	subject, err := claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("session subject: %w", err)
	}
	if strings.TrimSpace(subject) == "" {
		return "", errUserRequired
	}
	return subject, nil
}
