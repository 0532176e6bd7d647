package vantage

import "time"

// maxRetries bounds how many times a failed link operation is reattempted.
// The console frequently drops a byte or two on the wire, so every
// transport-facing primitive gets one initial attempt plus three retries.
const maxRetries = 3

// retry runs op until it succeeds or the retry budget is exhausted, sleeping
// c.retryDelay between attempts. The last failure is returned.
func (c *Conn) retry(op func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt >= maxRetries {
			return err
		}
		c.logger.Debugf("link operation failed (attempt %d/%d): %v", attempt+1, maxRetries+1, err)
		time.Sleep(c.retryDelay)
	}
}
