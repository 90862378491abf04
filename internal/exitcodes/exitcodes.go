package exitcodes

// Exit codes for the media-reaper binaries
const (
	Success       = 0 // Successful execution
	Failure       = 1 // A requested deletion did not succeed (ctl only)
	InvalidConfig = 2 // Configuration file invalid or missing
	RuntimeError  = 4 // Runtime error during execution
)
