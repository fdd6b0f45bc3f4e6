// Package logging provides structured logging configuration for mockgql.
//
// It wraps log/slog so every component logs the same way. Operational
// messages go to stderr; the server's ready banner is written to stdout by
// the CLI and never passes through here.
//
// # Usage
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.LevelInfo,
//	    Format: logging.FormatText,
//	})
//
//	logger.Info("schema loaded", "types", 12)
//	logger.Warn("mock key matches nothing in schema", "key", "Grup")
//
// Setting Config.Mirror tees every record at or above MirrorLevel into a
// second writer as JSON, independent of the console level.
//
// Components accept a *slog.Logger in their constructor or via an option.
// If no logger is provided, they use logging.Nop().
package logging
