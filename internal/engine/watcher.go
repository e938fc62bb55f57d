package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/miradorstack/equipment-monitor/internal/metrics"
)

// VocabularyWatcher reloads a vocabulary file on change and swaps it into a SwappableClassifier.
type VocabularyWatcher struct {
	path   string
	target *SwappableClassifier
	logger *slog.Logger
}

// NewVocabularyWatcher constructs a watcher for path.
func NewVocabularyWatcher(path string, target *SwappableClassifier, logger *slog.Logger) *VocabularyWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &VocabularyWatcher{path: path, target: target, logger: logger}
}

// Run watches the file's directory until ctx is cancelled. Editors that replace files
// (rename + create) are handled by watching the directory rather than the file itself.
func (w *VocabularyWatcher) Run(ctx context.Context) error {
	if w.path == "" || w.target == nil {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create vocabulary watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(w.path)
	w.logger.Info("vocabulary watcher started", slog.String("path", w.path))

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.Reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("vocabulary watcher error", slog.Any("error", err))
		case <-ctx.Done():
			w.logger.Info("vocabulary watcher stopping")
			return nil
		}
	}
}

// Reload reads the file and installs it. A file that fails to parse keeps the previous vocabulary.
func (w *VocabularyWatcher) Reload() error {
	vocab, err := LoadVocabulary(w.path, w.logger)
	if err != nil {
		metrics.ObserveVocabularyReload(metrics.OutcomeError)
		w.logger.Error("vocabulary reload failed, keeping previous", slog.String("path", w.path), slog.Any("error", err))
		return err
	}
	w.target.Swap(NewKeywordClassifier(vocab))
	metrics.ObserveVocabularyReload(metrics.OutcomeSuccess)
	w.logger.Info("vocabulary reloaded", slog.String("path", w.path), slog.Int("categories", len(vocab.Categories)))
	return nil
}
