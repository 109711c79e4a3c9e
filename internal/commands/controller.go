// Package commands contains the CLI commands for the application
package commands

import (
	"github.com/rs/zerolog"
)

// Flags are the global flags shared by every command
type Flags struct {
	LogLevel string
	// Config is an explicit schemagen.yaml path; empty searches upward from the working directory
	Config string
}

// Controller dispatches CLI commands
type Controller struct {
	Flags  *Flags
	Logger zerolog.Logger
}
