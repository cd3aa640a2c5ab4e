package domain

import "errors"

var (
	ErrRoomFull           = errors.New("room is full")
	ErrInvalidRoom        = errors.New("room id must not be empty")
	ErrShuttingDown       = errors.New("server is shutting down")
	ErrTooManyConnections = errors.New("too many concurrent connections")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrUnauthorized       = errors.New("unauthorized")
)
