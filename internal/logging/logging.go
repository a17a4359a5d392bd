// Package logging configures the process-wide logrus logger.
package logging

import (
	"strings"

	log "github.com/sirupsen/logrus"
)

// Configure sets level and formatter on the standard logger. Unknown levels
// fall back to info; format is "json" or "text".
func Configure(level, format string) {
	lvl, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	if err != nil && level != "" {
		log.WithField("level", level).Warn("Unknown log level, using info")
	}
}
