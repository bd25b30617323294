package main

// Exit codes
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError = 2 // Configuration error (missing config, bad cache backend)
	ExitDataError   = 3 // Data error (missing or inconsistent similarity artifact, malformed import)
	ExitNotFound    = 4 // Title, genre or user not found
	ExitAuthError   = 5 // Invalid username or password
)
