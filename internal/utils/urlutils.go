package utils

import (
	"regexp"
)

var (
	schemePattern           = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+-.]*://`)
	protocolRelativePattern = regexp.MustCompile(`^//`)
)

// EnsureScheme returns the URL with a scheme, defaulting to https:// when
// none is present. Protocol-relative inputs (//example.com/...) are
// resolved to https as well.
func EnsureScheme(rawURL string) string {
	if schemePattern.MatchString(rawURL) {
		return rawURL
	}
	if protocolRelativePattern.MatchString(rawURL) {
		return "https:" + rawURL
	}
	return "https://" + rawURL
}

// NoOpLogger is a logger that does nothing, useful for utility functions
// where a logger might not always be provided.
type NoOpLogger struct{}

func (l NoOpLogger) Debugf(format string, args ...interface{}) {}
func (l NoOpLogger) Infof(format string, args ...interface{})  {}
func (l NoOpLogger) Warnf(format string, args ...interface{})  {}
func (l NoOpLogger) Errorf(format string, args ...interface{}) {}
func (l NoOpLogger) Fatalf(format string, args ...interface{}) {}
