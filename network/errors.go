package network

import "errors"

var (
	ErrConnectionClosed        = errors.New("connection closed")
	ErrKeepAliveTimeout        = errors.New("keep-alive timeout")
	ErrGracefulShutdownTimeout = errors.New("graceful shutdown timeout")
)
