package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateID generates a random ID with prefix
func GenerateID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// GenerateConnectionID generates a unique connection ID
func GenerateConnectionID() string {
	return GenerateID("conn")
}

// GenerateUserID generates an identity for clients admitted with the static credential
func GenerateUserID() string {
	return GenerateID("user")
}
