package utils

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// GenerateRateLimitKey creates a unique key for rate limiting
func GenerateRateLimitKey(userID uint, resourceID, path string) string {
	return fmt.Sprintf("rl:%d:%s:%s", userID, resourceID, path)
}

// LogEvent logs an event with structured data
func LogEvent(eventType string, data map[string]interface{}) {
	logrus.WithFields(logrus.Fields(data)).Info(eventType)
}

// Pointer returns a pointer to the given value
func Pointer[T any](v T) *T {
	return &v
}
