package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/hoppin/models"
)

// sqlBackend keeps documents as rows of models.Document. Reads take row locks
// (SELECT ... FOR UPDATE) and updates are guarded by the row version, so a lost
// race shows up as a deadlock, a serialization failure, a duplicate key or a
// stale version. All of them are reported as ErrConflict.
type sqlBackend struct {
	db *gorm.DB
}

// NewSQL returns a Store backed by db. The documents table must exist; see
// models.Document. Close closes the underlying *sql.DB.
func NewSQL(db *gorm.DB, opts ...Option) *Store {
	return newStore(&sqlBackend{db: db}, opts)
}

func (b *sqlBackend) name() string {
	return "sql:" + b.db.Dialector.Name()
}

func (b *sqlBackend) now(context.Context) (time.Time, error) {
	return b.db.NowFunc(), nil
}

func (b *sqlBackend) attempt(ctx context.Context, fn attemptFunc) error {
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := &sqlReader{tx: tx, seen: map[string]*models.Document{}}
		writes, err := fn(r)
		if err != nil {
			return err
		}
		for _, w := range writes {
			if err := r.apply(w); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && isSQLConflict(err) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}

func (b *sqlBackend) get(ctx context.Context, path string) (Fields, bool, error) {
	var doc models.Document
	err := b.db.WithContext(ctx).Where("path = ?", path).Take(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	fields, err := decodeFields([]byte(doc.Fields))
	if err != nil {
		return nil, false, err
	}
	return fields, true, nil
}

func (b *sqlBackend) close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type sqlReader struct {
	tx *gorm.DB
	// seen caches locked rows by path; a nil entry means the row was absent.
	seen map[string]*models.Document
}

func (r *sqlReader) load(path string) (*models.Document, error) {
	if doc, ok := r.seen[path]; ok {
		return doc, nil
	}
	var doc models.Document
	err := r.tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("path = ?", path).Take(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		r.seen[path] = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.seen[path] = &doc
	return &doc, nil
}

func (r *sqlReader) read(_ context.Context, path string) (Fields, bool, error) {
	doc, err := r.load(path)
	if err != nil || doc == nil {
		return nil, false, err
	}
	fields, err := decodeFields([]byte(doc.Fields))
	if err != nil {
		return nil, false, err
	}
	return fields, true, nil
}

func (r *sqlReader) apply(w write) error {
	doc, err := r.load(w.path)
	if err != nil {
		return err
	}

	var base Fields
	if doc != nil {
		if base, err = decodeFields([]byte(doc.Fields)); err != nil {
			return err
		}
	}
	data, err := encodeFields(apply(base, w))
	if err != nil {
		return fmt.Errorf("encode %s: %w", w.path, err)
	}

	if doc == nil {
		created := &models.Document{Path: w.path, Fields: string(data), Version: 1}
		if err := r.tx.Create(created).Error; err != nil {
			return err
		}
		r.seen[w.path] = created
		return nil
	}

	res := r.tx.Model(&models.Document{}).
		Where("path = ? AND version = ?", doc.Path, doc.Version).
		Updates(map[string]any{"fields": string(data), "version": doc.Version + 1})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: stale version of %s", ErrConflict, w.path)
	}
	doc.Fields = string(data)
	doc.Version++
	return nil
}

func isSQLConflict(err error) bool {
	if errors.Is(err, ErrConflict) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1062, 1205, 1213: // duplicate entry, lock wait timeout, deadlock
			return true
		}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "40001", "40P01": // unique_violation, serialization_failure, deadlock_detected
			return true
		}
	}
	return false
}
