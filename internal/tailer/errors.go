package tailer

import (
	"errors"
	"fmt"
)

// ErrStopped is returned when a closed follower is polled or run again.
var ErrStopped = errors.New("follower stopped")

// InvalidConfigError reports a follower option that cannot be used.
type InvalidConfigError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsInvalidConfig checks if an error is an InvalidConfigError.
func IsInvalidConfig(err error) bool {
	var target *InvalidConfigError
	return errors.As(err, &target)
}
