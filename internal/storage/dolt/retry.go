package dolt

import "strings"

// isRetryableError reports whether err is a transient connection error
// worth retrying in server mode, verbatim grounded on the teacher's
// isRetryableError (store.go) — go-sql-driver/mysql has no built-in retry,
// unlike the embedded dolthub/driver.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "driver: bad connection"),
		strings.Contains(errStr, "invalid connection"),
		strings.Contains(errStr, "broken pipe"),
		strings.Contains(errStr, "connection reset"),
		strings.Contains(errStr, "connection refused"):
		return true
	default:
		return false
	}
}
