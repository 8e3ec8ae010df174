package utils

import (
	"io"

	"github.com/MrSnakeDoc/marksync/internal/logger"
)

// CloseLogged closes c and logs a failure under the component name.
func CloseLogged(c io.Closer, component string, log logger.Logger) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		log.Warn("failed to close",
			logger.String("component", component),
			logger.Error(err))
		return
	}
	log.Debug("closed", logger.String("component", component))
}
