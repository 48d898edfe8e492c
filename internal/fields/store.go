package fields

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

// Store persists field configuration documents.
// Load returns common.ErrNotFound when nothing has been saved yet.
type Store interface {
	Load(ctx context.Context) (Document, error)
	Save(ctx context.Context, doc Document) error
}

// FileStore keeps the document in a JSON or YAML file chosen by extension.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Load(_ context.Context) (Document, error) {
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return Document{}, common.NewAppError("FIELDS_NOT_FOUND", s.Path, common.ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("read field config: %w", err)
	}
	return ParseDocument(b, FormatFromPath(s.Path))
}

func (s *FileStore) Save(_ context.Context, doc Document) error {
	tmp, err := NewSchema(doc.Fields, doc.Presets)
	if err != nil {
		return err
	}
	b, err := tmp.Export(FormatFromPath(s.Path))
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(s.Path, b, 0o644)
}

// LoadSchema reads the schema from store, falling back to the built-in
// defaults when the store is empty. A nil store yields the defaults.
func LoadSchema(ctx context.Context, store Store, logger *slog.Logger) (*Schema, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		logger.Debug("fields.load.defaults", "reason", "no store")
		return DefaultSchema(), nil
	}
	doc, err := store.Load(ctx)
	if errors.Is(err, common.ErrNotFound) {
		logger.Info("fields.load.defaults", "reason", "store empty")
		return DefaultSchema(), nil
	}
	if err != nil {
		logger.Error("fields.load.failed", "error", err)
		return nil, err
	}
	s, err := NewSchema(doc.Fields, doc.Presets)
	if err != nil {
		logger.Error("fields.load.invalid", "error", err)
		return nil, err
	}
	logger.Info("fields.load.ok", "fields", s.Len(), "presets", len(s.PresetNames()))
	return s, nil
}

// ResolveSelection turns a preset name and/or explicit names into a
// selection. An unknown preset is an error; explicit names are appended.
func (s *Schema) ResolveSelection(preset string, names []string) ([]string, error) {
	var out []string
	if preset != "" {
		p, ok := s.Preset(preset)
		if !ok {
			return nil, common.NewAppError("PRESET_NOT_FOUND", fmt.Sprintf("preset %q", preset), common.ErrNotFound)
		}
		out = append(out, p...)
	}
	return append(out, names...), nil
}
