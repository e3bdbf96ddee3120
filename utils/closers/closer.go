// Package closers provides a best-effort Close helper that logs a close
// error instead of returning it, so a caller closing several io.Closers
// in turn is not stopped by the first failure.
package closers

import (
	"io"

	"github.com/dmoresh/torrentd/utils/log"
)

// Close closes c, logging (not returning) any error. A nil c is a no-op.
func Close(c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		log.Errorf("Error closing %T: %s", c, err)
	}
}
