// Package access enforces the public-XOR-departmental permission invariant
// for documents. A document carries either the single public row (nil
// department) or one-or-more department rows, never both.
package access

import (
	"context"
	"errors"

	"github.com/YoussefKhaledS/Document-Repository/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Manager is the permission manager over the shared store.
type Manager struct {
	db *gorm.DB
}

// New creates a Manager backed by the given GORM DB.
func New(db *gorm.DB) *Manager {
	return &Manager{db: db}
}

// GrantDepartment removes any public row for the document, then inserts the
// department row if absent. Idempotent: re-granting never errors and never
// duplicates rows.
func (m *Manager) GrantDepartment(ctx context.Context, documentID, departmentID string) error {
	return GrantDepartmentTx(m.db.WithContext(ctx), documentID, departmentID)
}

// GrantDepartmentTx is GrantDepartment running on an existing transaction.
func GrantDepartmentTx(tx *gorm.DB, documentID, departmentID string) error {
	// Drop the public row first so public and scoped rows never coexist.
	if err := tx.Where("document_id = ? AND department_id IS NULL", documentID).
		Delete(&model.DocumentPermission{}).Error; err != nil {
		return err
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_id"}, {Name: "department_id"}},
		DoNothing: true,
	}).Create(&model.DocumentPermission{DocumentID: documentID, DepartmentID: &departmentID}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}

// GrantPublic inserts the public row if the document has none. Used only at
// first creation when no departments are named; re-establishing public access
// after a scoped grant is an explicit caller decision, never automatic.
func (m *Manager) GrantPublic(ctx context.Context, documentID string) error {
	return GrantPublicTx(m.db.WithContext(ctx), documentID)
}

// GrantPublicTx is GrantPublic running on an existing transaction.
//
// SQL treats NULLs as distinct in unique indexes, so the public row cannot
// lean on uq_document_department; the existence check runs inside the
// caller's transaction instead.
func GrantPublicTx(tx *gorm.DB, documentID string) error {
	var count int64
	if err := tx.Model(&model.DocumentPermission{}).
		Where("document_id = ? AND department_id IS NULL", documentID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return tx.Create(&model.DocumentPermission{DocumentID: documentID}).Error
}

// HasAccess reports whether the employee can see the document: a public row
// exists, or a row matches the employee's department. Employees without a
// department only see public documents.
func (m *Manager) HasAccess(ctx context.Context, employee *model.Employee, documentID string) (bool, error) {
	cond, args := PermissionPredicate(employee)
	q := m.db.WithContext(ctx).Model(&model.DocumentPermission{}).
		Where("document_id = ?", documentID).
		Where(cond, args...)
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// PermissionPredicate returns the permission filter for the employee, for
// composition into larger queries (the query engine reuses it so search and
// access checks can never disagree).
func PermissionPredicate(employee *model.Employee) (string, []any) {
	if employee.DepartmentID == nil {
		return "document_permissions.department_id IS NULL", nil
	}
	return "(document_permissions.department_id = ? OR document_permissions.department_id IS NULL)",
		[]any{*employee.DepartmentID}
}
