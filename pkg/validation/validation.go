package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"time"
	"unicode/utf8"
)

const (
	MaxRoomIDLength = 256
	MaxUserIDLength = 128
)

var (
	// UserIDRegex validates user IDs minted through the token endpoint
	UserIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:@-]+$`)
)

// ValidateRoomID validates a room identifier supplied by a client
func ValidateRoomID(roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room is required")
	}
	if len(roomID) > MaxRoomIDLength {
		return fmt.Errorf("room is too long (max %d bytes)", MaxRoomIDLength)
	}
	if !utf8.ValidString(roomID) {
		return fmt.Errorf("room contains invalid characters")
	}
	return nil
}

// ValidateUserID validates user ID
func ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("user ID is required")
	}
	if len(userID) > MaxUserIDLength {
		return fmt.Errorf("user ID is too long (max %d characters)", MaxUserIDLength)
	}
	if !UserIDRegex.MatchString(userID) {
		return fmt.Errorf("invalid user ID format")
	}
	return nil
}

// ValidateTokenTTL checks a requested token lifetime against the configured maximum
func ValidateTokenTTL(ttl, max time.Duration) error {
	if ttl < time.Second {
		return fmt.Errorf("token ttl must be at least 1s")
	}
	if max > 0 && ttl > max {
		return fmt.Errorf("token ttl is too long (max %s)", max)
	}
	return nil
}

// ValidateOrigin validates an allowed origin entry. "*" allows any origin.
func ValidateOrigin(origin string) error {
	if origin == "*" {
		return nil
	}
	if origin == "" {
		return fmt.Errorf("origin is required")
	}
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid origin scheme (must be http or https)")
	}
	if u.Host == "" {
		return fmt.Errorf("origin must have a host")
	}
	if u.Path != "" && u.Path != "/" {
		return fmt.Errorf("origin must not have a path")
	}
	return nil
}
