package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	obsctx "github.com/fairyhunter13/ai-resume-matcher/internal/observability"
)

// loadMeta reads a namespace metadata file keyed by decimal id. A missing file
// is an empty map; an unreadable one is logged and also treated as empty.
func loadMeta(ctx context.Context, path string) map[int64]Entry {
	out := map[int64]Entry{}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return out
	}
	lg := obsctx.LoggerFromContext(ctx)
	if err != nil {
		lg.Warn("metadata unreadable; starting empty", slog.String("path", path), slog.Any("error", err))
		return out
	}
	var raw map[string]Entry
	if err := json.Unmarshal(b, &raw); err != nil {
		lg.Warn("metadata corrupt; starting empty", slog.String("path", path), slog.Any("error", err))
		return out
	}
	for k, e := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil || id < 0 {
			lg.Warn("skipping metadata entry with bad id", slog.String("path", path), slog.String("id", k))
			continue
		}
		if e.Metadata == nil {
			e.Metadata = map[string]any{}
		}
		out[id] = e
	}
	return out
}

// writeMeta replaces path atomically with the JSON encoding of meta.
func writeMeta(path string, meta map[int64]Entry) error {
	raw := make(map[string]Entry, len(meta))
	for id, e := range meta {
		raw[strconv.FormatInt(id, 10)] = e
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}
