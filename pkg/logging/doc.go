// Package logging provides a process-wide structured logger for stratum.
//
// The package wraps [log/slog] and exposes a single global logger instance
// that is initialized once and then retrieved via GetLogger. All subsystems
// should obtain a logger through this package rather than constructing their
// own slog.Logger values, so that log level and output destination are
// controlled from a single place.
//
// # Initialisation
//
// Call Init (or InitDefault for sensible defaults) once at program startup,
// before any goroutines that might call GetLogger are spawned:
//
//	if err := logging.Init(logging.Config{Level: logging.LevelDebug}); err != nil {
//	    log.Fatal(err)
//	}
//
// InitDefault writes INFO-level text logs to stdout.
//
// # Retrieving the logger
//
//	logger := logging.GetLogger()
//	logger.Info("pool created", "frames", poolSize)
//
// If GetLogger is called before Init, a default logger is created lazily
// (via sync.Once) so that packages that log during init are safe.
//
// # Context helpers
//
// Helpers return child loggers pre-populated with structured fields,
// reducing repetition in hot paths:
//
//	log := logging.WithPage(pid)   // adds page_id field
//	log := logging.WithFrame(fid)  // adds frame_id field
//	log := logging.WithIndex(name) // adds index field
package logging
