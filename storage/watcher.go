package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"noddymix/logger"

	"github.com/fsnotify/fsnotify"
)

// SpoolWatcher watches a local drop directory and pushes finished files
// into the asset store. Operators (or the upload handler) drop .mp3 and
// .jpg files into the spool; the watcher uploads each one under a key
// matching its filename and removes the local copy.
type SpoolWatcher struct {
	store    *AssetStore
	dir      string
	settleMs time.Duration
}

// NewSpoolWatcher creates a SpoolWatcher over dir.
func NewSpoolWatcher(store *AssetStore, dir string) *SpoolWatcher {
	return &SpoolWatcher{store: store, dir: dir, settleMs: 500 * time.Millisecond}
}

// Run watches the spool directory until ctx is done. Individual file
// failures are logged and skipped; the watcher keeps going.
func (w *SpoolWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		return err
	}
	logger.Info("Watching spool directory", logger.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.handle(ctx, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Spool watcher error", logger.ErrorField(err))
		}
	}
}

func (w *SpoolWatcher) handle(ctx context.Context, name string) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".mp3" && ext != ".jpg" {
		return
	}

	// Give the writer a moment to finish before picking the file up.
	time.Sleep(w.settleMs)

	f, err := os.Open(name)
	if err != nil {
		// Rapid rewrites fire multiple events; later ones find the file
		// already uploaded and gone.
		if !os.IsNotExist(err) {
			logger.Warn("Failed to open spooled file",
				logger.String("file", name), logger.ErrorField(err))
		}
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		logger.Warn("Failed to stat spooled file",
			logger.String("file", name), logger.ErrorField(err))
		return
	}

	key := filepath.Base(name)
	switch ext {
	case ".mp3":
		key = "audio/" + key
		err = w.store.UploadAudio(ctx, key, f, info.Size())
	case ".jpg":
		key = "art/" + key
		err = w.store.UploadArt(ctx, key, f, info.Size())
	}
	if err != nil {
		logger.Error("Failed to upload spooled file",
			logger.String("file", name), logger.ErrorField(err))
		return
	}

	if err := os.Remove(name); err != nil {
		logger.Warn("Failed to remove spooled file after upload",
			logger.String("file", name), logger.ErrorField(err))
		return
	}
	logger.Info("Uploaded spooled file",
		logger.String("file", name), logger.String("key", key))
}
