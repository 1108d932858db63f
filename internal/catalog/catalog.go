// Package catalog normalizes tags and attaches them to documents.
package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/YoussefKhaledS/Document-Repository/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Catalog is the tag catalog over the shared store.
type Catalog struct {
	db *gorm.DB
}

// New creates a Catalog backed by the given GORM DB.
func New(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

// Normalize trims, lowercases, drops empties, and deduplicates the given
// names. The result is sorted so callers get deterministic ordering.
func Normalize(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Ensure returns the tag with the given normalized name, creating it if
// absent. Safe under concurrent callers (upsert + re-fetch).
func (c *Catalog) Ensure(ctx context.Context, name string) (*model.Tag, error) {
	return EnsureTx(c.db.WithContext(ctx), name)
}

// EnsureTx is Ensure running on an existing transaction.
func EnsureTx(tx *gorm.DB, name string) (*model.Tag, error) {
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&model.Tag{Name: name}).Error; err != nil {
		return nil, err
	}
	var tag model.Tag
	if err := tx.Where("name = ?", name).First(&tag).Error; err != nil {
		return nil, err
	}
	return &tag, nil
}

// Attach inserts the (document, tag) join row if absent and reports whether
// an insert occurred. Re-attaching an existing tag is a no-op, never an error.
func (c *Catalog) Attach(ctx context.Context, documentID, tagID string) (bool, error) {
	return AttachTx(c.db.WithContext(ctx), documentID, tagID)
}

// AttachTx is Attach running on an existing transaction.
func AttachTx(tx *gorm.DB, documentID, tagID string) (bool, error) {
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.DocumentTag{DocumentID: documentID, TagID: tagID})
	if res.Error != nil {
		// Some drivers report the composite-PK conflict instead of ignoring it.
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
