package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/fields"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS field_definitions (
		name       TEXT PRIMARY KEY,
		position   INTEGER NOT NULL,
		definition TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS field_presets (
		preset     TEXT NOT NULL,
		position   INTEGER NOT NULL,
		field_name TEXT NOT NULL,
		PRIMARY KEY (preset, position)
	)`,
}

// FieldRepository persists the field configuration. It implements fields.Store.
type FieldRepository struct {
	db     *DB
	logger *slog.Logger
}

var _ fields.Store = (*FieldRepository)(nil)

func NewFieldRepository(db *DB, logger *slog.Logger) *FieldRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &FieldRepository{db: db, logger: logger}
}

// Migrate creates the tables when they do not exist yet.
func (r *FieldRepository) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := r.db.SQL.ExecContext(ctx, stmt); err != nil {
			r.logger.Error("fields.migrate.failed", "error", err)
			return dbErr("migrate", err)
		}
	}
	return nil
}

// Load returns common.ErrNotFound when no field has been saved.
func (r *FieldRepository) Load(ctx context.Context) (fields.Document, error) {
	rows, err := r.db.SQL.QueryContext(ctx, `SELECT definition FROM field_definitions ORDER BY position`)
	if err != nil {
		return fields.Document{}, dbErr("query fields", err)
	}
	defer rows.Close()

	var doc fields.Document
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return fields.Document{}, dbErr("scan field", err)
		}
		var def fields.FieldDefinition
		if err := json.Unmarshal([]byte(raw), &def); err != nil {
			return fields.Document{}, common.NewAppError("FIELD_CORRUPT", "decode stored field", err)
		}
		doc.Fields = append(doc.Fields, def)
	}
	if err := rows.Err(); err != nil {
		return fields.Document{}, dbErr("iterate fields", err)
	}
	_ = rows.Close()
	if len(doc.Fields) == 0 {
		return fields.Document{}, common.NewAppError("FIELDS_NOT_FOUND", "no stored fields", common.ErrNotFound)
	}

	prow, err := r.db.SQL.QueryContext(ctx, `SELECT preset, field_name FROM field_presets ORDER BY preset, position`)
	if err != nil {
		return fields.Document{}, dbErr("query presets", err)
	}
	defer prow.Close()
	doc.Presets = map[string][]string{}
	for prow.Next() {
		var preset, name string
		if err := prow.Scan(&preset, &name); err != nil {
			return fields.Document{}, dbErr("scan preset", err)
		}
		doc.Presets[preset] = append(doc.Presets[preset], name)
	}
	if err := prow.Err(); err != nil {
		return fields.Document{}, dbErr("iterate presets", err)
	}
	return doc, nil
}

// Save replaces the stored configuration in one transaction.
func (r *FieldRepository) Save(ctx context.Context, doc fields.Document) error {
	start := time.Now()
	tx, err := r.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return dbErr("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := r.replace(ctx, tx, doc); err != nil {
		r.logger.Error("fields.save.failed", "error", err)
		return err
	}
	if err := tx.Commit(); err != nil {
		return dbErr("commit", err)
	}
	r.logger.Info("fields.save.ok",
		"fields", len(doc.Fields),
		"presets", len(doc.Presets),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (r *FieldRepository) replace(ctx context.Context, tx *sql.Tx, doc fields.Document) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM field_presets`); err != nil {
		return dbErr("clear presets", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM field_definitions`); err != nil {
		return dbErr("clear fields", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	insField := r.db.Rebind(`INSERT INTO field_definitions (name, position, definition, updated_at) VALUES (?, ?, ?, ?)`)
	for i, def := range doc.Fields {
		b, err := json.Marshal(def)
		if err != nil {
			return fmt.Errorf("encode field %q: %w", def.Name, err)
		}
		if _, err := tx.ExecContext(ctx, insField, def.Name, i, string(b), now); err != nil {
			return dbErr("insert field "+def.Name, err)
		}
	}

	insPreset := r.db.Rebind(`INSERT INTO field_presets (preset, position, field_name) VALUES (?, ?, ?)`)
	for preset, names := range doc.Presets {
		for i, name := range names {
			if _, err := tx.ExecContext(ctx, insPreset, preset, i, name); err != nil {
				return dbErr("insert preset "+preset, err)
			}
		}
	}
	return nil
}

func dbErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return common.NewAppError("DB_ERROR", op, fmt.Errorf("%w: %w", common.ErrDatabase, err))
}
