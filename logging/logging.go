// Package logging configures the process-wide logrus logger.
package logging

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Setup applies level and format. Unknown levels fall back to info.
func Setup(level, format string) {
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetOutput(os.Stdout)

	if strings.EqualFold(format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
		return
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}

// ForStore returns an entry tagged with the store and component.
func ForStore(component, storeID string) *log.Entry {
	return log.WithFields(log.Fields{"component": component, "store": storeID})
}
