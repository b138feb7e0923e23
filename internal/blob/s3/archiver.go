package s3blob

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const uploadTimeout = 2 * time.Minute

// CSVArchiver uploads rotated daily CSV logs. It satisfies the recorder's
// Archiver hook: Archive returns immediately and the upload runs in the
// background so log rotation never blocks on the network.
type CSVArchiver struct {
	writer *Writer
	prefix string
	logger *slog.Logger
}

// NewCSVArchiver creates an archiver storing objects under prefix/.
func NewCSVArchiver(c *Client, prefix string, logger *slog.Logger) *CSVArchiver {
	return &CSVArchiver{
		writer: NewWriter(c),
		prefix: prefix,
		logger: logger.With(slog.String("component", "s3-archiver")),
	}
}

// Archive schedules the file for upload. The local file is left in place;
// pruning old logs is an operator concern.
func (a *CSVArchiver) Archive(path string) {
	go a.upload(path)
}

func (a *CSVArchiver) upload(path string) {
	ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
	defer cancel()

	f, err := os.Open(path)
	if err != nil {
		a.logger.Warn("archive open failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}
	defer f.Close()

	key := filepath.Base(path)
	if a.prefix != "" {
		key = a.prefix + "/" + key
	}
	if err := a.writer.Put(ctx, key, f, "text/csv"); err != nil {
		a.logger.Warn("archive upload failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return
	}
	a.logger.Info("archived", slog.String("key", key))
}
