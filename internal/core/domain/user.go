package domain

// UserID is the principal id assigned by the authenticator. It never changes
// for the lifetime of a connection.
type UserID string

// AuthMethod records which credential strategy admitted a connection.
type AuthMethod string

const (
	AuthMethodStaticToken AuthMethod = "static_token"
	AuthMethodJWT         AuthMethod = "jwt"
)

type Identity struct {
	UserID UserID
	Method AuthMethod
}
