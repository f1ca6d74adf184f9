package speech

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const sweepInterval = 30 * time.Minute

// StartClipSweeper runs a background goroutine that periodically
// deletes synthesized clips older than ttl, both the files and their
// index rows. Clients hold clip URLs only for the duration of a
// session, so expired clips are safe to drop.
func StartClipSweeper(ctx context.Context, clips *ClipStore, audioDir string, ttl time.Duration) {
	ticker := time.NewTicker(sweepInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Clip sweeper started", "interval", sweepInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				sweepExpiredClips(ctx, clips, audioDir, ttl)
			case <-ctx.Done():
				slog.Info("Clip sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepExpiredClips(ctx context.Context, clips *ClipStore, audioDir string, ttl time.Duration) {
	expired, err := clips.Expired(ctx, ttl)
	if err != nil {
		slog.Error("Clip sweeper failed to list expired clips", "error", err)
		return
	}
	if len(expired) == 0 {
		return
	}

	var removed []string
	for _, filename := range expired {
		path := filepath.Join(audioDir, filename)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("Clip sweeper failed to remove file", "error", err, "filename", filename)
			continue
		}
		removed = append(removed, filename)
	}

	if err := clips.DeleteByFilename(ctx, removed); err != nil {
		slog.Error("Clip sweeper failed to delete index rows", "error", err)
		return
	}
	slog.Info("Clip sweeper cleanup completed", "removed", len(removed))
}
