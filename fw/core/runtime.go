package core

import "time"

// StartTimestamp is the time the daemon was started.
var StartTimestamp time.Time
