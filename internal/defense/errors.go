package defense

import "errors"

// ErrSignalFailed is returned by Actuator.Trigger when the control
// connection or the NEWNYM signal fails.
var ErrSignalFailed = errors.New("failed to send NEWNYM")
