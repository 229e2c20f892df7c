package services

import "github.com/rs/zerolog"

var nopLogger = zerolog.Nop()

// loggerOr returns l, or a disabled logger when l is nil.
func loggerOr(l *zerolog.Logger) *zerolog.Logger {
	if l == nil {
		return &nopLogger
	}
	return l
}
