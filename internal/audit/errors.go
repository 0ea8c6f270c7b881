package audit

import "errors"

// ErrQueueFull is returned when the async queue cannot accept an event.
var ErrQueueFull = errors.New("audit queue full")
