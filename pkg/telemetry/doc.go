// Package telemetry provides structured logging for parfait.
//
// The package wraps zerolog behind a small Logger type so every component
// logs through the same configuration, field conventions, and context
// plumbing. It is the only place in the library that knows how log output
// is formatted and where it goes.
//
// # Usage
//
// Initialize a logger once, near the top of the program:
//
//	logger, err := telemetry.NewLogger(telemetry.DefaultLoggingConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Hand components a child logger carrying their name:
//
//	watcherLog := logger.NewComponentLogger("watcher")
//	watcherLog.Info("Watching config file")
//
// Library components that accept a *Logger treat a missing one as
// telemetry.Nop(), so logging is always opt-in.
//
// # Structured Fields
//
// Helpers add the fields this library's operations share:
//
//	logger.WithConfigName("app").WithFieldPath("app.server.port").
//	    Info("Value assigned")
//	logger.WithOrigin(provenance.Here()).Debug("Mutation recorded")
//	logger.WithError(err).Error("Load failed")
//
// Log levels: trace, debug, info, warn, error, fatal.
//
// # Context
//
// Loggers travel on context.Context for code that spans call trees:
//
//	ctx = logger.WithContext(ctx)
//	...
//	telemetry.FromContext(ctx).Warn("Falling back to defaults")
//
// # Configuration
//
// Two starting points cover the common cases:
//
//	// info-level JSON on stdout
//	cfg := telemetry.DefaultLoggingConfig()
//
//	// debug-level console output with caller information
//	cfg := telemetry.DevelopmentLoggingConfig()
//
// Output may also name a file path, and sampling can be enabled for
// high-frequency callers via EnableSampling.
//
// Components that take zerolog directly can use Logger.Zerolog:
//
//	r := config.NewRegistry("sinks",
//	    config.WithRegistryLogger(logger.NewComponentLogger("registry").Zerolog()))
package telemetry
