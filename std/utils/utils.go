package utils

// Version of mctpd from source control, set by the linker.
var Version string = "unknown"
