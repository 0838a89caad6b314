// Package logging configures the process-wide structured slog logger.
package logging
