// Package model contains GORM model definitions shared across packages.
// All models are driver-agnostic: they work with both PostgreSQL and SQLite.
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Department groups employees for scoped document access. Names are stored
// normalized (trimmed, lowercase) and are unique.
type Department struct {
	ID   string `gorm:"type:text;primaryKey"`
	Name string `gorm:"type:text;not null;uniqueIndex"`
}

// BeforeCreate generates a UUID primary key if not set.
func (d *Department) BeforeCreate(_ *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}

// Role is a named role assigned to employees (admin, manager, user).
type Role struct {
	ID   string `gorm:"type:text;primaryKey"`
	Name string `gorm:"type:text;not null;uniqueIndex"`
}

// BeforeCreate generates a UUID primary key if not set.
func (r *Role) BeforeCreate(_ *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// Employee is the GORM model for the employees table. DepartmentID is nil for
// employees outside any department; such employees only see public documents.
type Employee struct {
	ID           string  `gorm:"type:text;primaryKey"`
	Name         string  `gorm:"type:text;not null;uniqueIndex"`
	Email        string  `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash string  `gorm:"type:text;not null"`
	RoleID       string  `gorm:"type:text;not null"`
	DepartmentID *string `gorm:"type:text"`
	CreatedAt    time.Time

	Role       *Role       `gorm:"foreignKey:RoleID"`
	Department *Department `gorm:"foreignKey:DepartmentID"`
}

// BeforeCreate generates a UUID primary key if not set.
func (e *Employee) BeforeCreate(_ *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

// Document is the versioned document head. Title is the natural key for the
// "new document vs new version" decision, so it carries a unique index.
// CurrentVersionID always references a version belonging to this document;
// it is nil only inside the transaction that creates the first version.
type Document struct {
	ID               string  `gorm:"type:text;primaryKey"`
	Title            string  `gorm:"type:text;not null;uniqueIndex"`
	UploaderID       string  `gorm:"type:text;not null"`
	CurrentVersionID *string `gorm:"type:text"`
	CreatedAt        time.Time

	Uploader *Employee         `gorm:"foreignKey:UploaderID"`
	Versions []DocumentVersion `gorm:"foreignKey:DocumentID"`
}

// BeforeCreate generates a UUID primary key if not set.
func (d *Document) BeforeCreate(_ *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}

// DocumentVersion is append-only: rows are never updated or deleted.
// VersionNumber is unique per document, enforced at commit time by the
// composite unique index.
type DocumentVersion struct {
	ID            string  `gorm:"type:text;primaryKey"`
	DocumentID    string  `gorm:"type:text;not null;uniqueIndex:uq_document_version"`
	VersionNumber float64 `gorm:"not null;uniqueIndex:uq_document_version"`
	Filepath      string  `gorm:"type:text;not null"`
	Filename      string  `gorm:"type:text;not null"`
	UploadedAt    time.Time
	UploaderID    string `gorm:"type:text;not null"`

	Uploader *Employee `gorm:"foreignKey:UploaderID"`
}

// BeforeCreate generates a UUID primary key if not set.
func (v *DocumentVersion) BeforeCreate(_ *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	return nil
}

// Tag is a global, normalized tag shared across documents.
type Tag struct {
	ID   string `gorm:"type:text;primaryKey"`
	Name string `gorm:"type:text;not null;uniqueIndex"`
}

// BeforeCreate generates a UUID primary key if not set.
func (t *Tag) BeforeCreate(_ *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

// DocumentTag is the documents<->tags join table. The composite primary key
// makes re-attachment a no-op at the schema level.
type DocumentTag struct {
	DocumentID string `gorm:"type:text;primaryKey"`
	TagID      string `gorm:"type:text;primaryKey"`
}

// DocumentPermission grants access to a document. A nil DepartmentID is the
// public row: visible to every employee. For any document the rows are either
// the single public row or scoped rows, never both.
type DocumentPermission struct {
	ID           string  `gorm:"type:text;primaryKey"`
	DocumentID   string  `gorm:"type:text;not null;uniqueIndex:uq_document_department"`
	DepartmentID *string `gorm:"type:text;uniqueIndex:uq_document_department"`
}

// BeforeCreate generates a UUID primary key if not set.
func (p *DocumentPermission) BeforeCreate(_ *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// RefreshToken is the GORM model for the refresh_tokens table.
type RefreshToken struct {
	ID         string    `gorm:"type:text;primaryKey"`
	EmployeeID string    `gorm:"type:text;not null;index"`
	TokenHash  string    `gorm:"type:text;not null;uniqueIndex"`
	ExpiresAt  time.Time `gorm:"not null"`
	RevokedAt  *time.Time
	CreatedAt  time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (rt *RefreshToken) BeforeCreate(_ *gorm.DB) error {
	if rt.ID == "" {
		rt.ID = uuid.New().String()
	}
	return nil
}

// All returns every model for AutoMigrate, in FK dependency order.
func All() []any {
	return []any{
		&Department{},
		&Role{},
		&Employee{},
		&Document{},
		&DocumentVersion{},
		&Tag{},
		&DocumentTag{},
		&DocumentPermission{},
		&RefreshToken{},
	}
}
