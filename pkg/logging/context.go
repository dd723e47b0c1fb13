package logging

import (
	"log/slog"

	"stratum/pkg/primitives"
)

// WithPage creates a logger with page context.
// Useful for buffer pool and disk operations.
//
// Example:
//
//	log := logging.WithPage(pid)
//	log.Debug("page evicted", "dirty", wasDirty)
func WithPage(pid primitives.PageID) *slog.Logger {
	return GetLogger().With("page_id", int64(pid))
}

// WithFrame creates a logger with frame context.
//
// Example:
//
//	log := logging.WithFrame(fid)
//	log.Debug("frame reused")
func WithFrame(fid primitives.FrameID) *slog.Logger {
	return GetLogger().With("frame_id", int32(fid))
}

// WithIndex creates a logger with index context.
//
// Example:
//
//	log := logging.WithIndex("orders_pk")
//	log.Debug("leaf split", "page_id", pid)
func WithIndex(indexName string) *slog.Logger {
	return GetLogger().With("index", indexName)
}
