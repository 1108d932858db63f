// Package directory resolves and creates departments, roles, and employees.
// Find-or-create paths are atomic upserts guarded by unique indexes: insert
// with ON CONFLICT DO NOTHING, then re-fetch. Two concurrent calls with the
// same name can never produce two rows.
package directory

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/YoussefKhaledS/Document-Repository/internal/apperr"
	"github.com/YoussefKhaledS/Document-Repository/internal/model"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var emailPattern = regexp.MustCompile(`^[\w.-]+@[\w.-]+\.\w+$`)

// Directory is the identity directory over the shared store.
type Directory struct {
	db *gorm.DB
}

// New creates a Directory backed by the given GORM DB.
func New(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// Normalize trims and lowercases a name used as a lookup key.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// EnsureDepartment returns the department with the normalized name, creating
// it if absent. Safe under concurrent callers.
func (d *Directory) EnsureDepartment(ctx context.Context, name string) (*model.Department, error) {
	name = Normalize(name)
	if name == "" {
		return nil, apperr.Validation("department", "department name is required")
	}
	return ensureDepartment(d.db.WithContext(ctx), name)
}

// EnsureDepartmentTx is EnsureDepartment running on an existing transaction.
func EnsureDepartmentTx(tx *gorm.DB, name string) (*model.Department, error) {
	name = Normalize(name)
	if name == "" {
		return nil, apperr.Validation("department", "department name is required")
	}
	return ensureDepartment(tx, name)
}

func ensureDepartment(tx *gorm.DB, name string) (*model.Department, error) {
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&model.Department{Name: name}).Error; err != nil {
		return nil, err
	}
	var dep model.Department
	if err := tx.Where("name = ?", name).First(&dep).Error; err != nil {
		return nil, err
	}
	return &dep, nil
}

// EnsureRole returns the role with the normalized name, creating it if absent.
func (d *Directory) EnsureRole(ctx context.Context, name string) (*model.Role, error) {
	name = Normalize(name)
	if name == "" {
		return nil, apperr.Validation("role", "role name is required")
	}
	tx := d.db.WithContext(ctx)
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&model.Role{Name: name}).Error; err != nil {
		return nil, err
	}
	var role model.Role
	if err := tx.Where("name = ?", name).First(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

// EmployeeByName looks up an employee by normalized name. Employees are never
// auto-created.
func (d *Directory) EmployeeByName(ctx context.Context, name string) (*model.Employee, error) {
	return employeeByNameTx(d.db.WithContext(ctx), name)
}

func employeeByNameTx(tx *gorm.DB, name string) (*model.Employee, error) {
	name = Normalize(name)
	var emp model.Employee
	if err := tx.Where("name = ?", name).First(&emp).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("uploader %q not found", name)
		}
		return nil, err
	}
	return &emp, nil
}

// EmployeeByID looks up an employee by primary key.
func (d *Directory) EmployeeByID(ctx context.Context, id string) (*model.Employee, error) {
	var emp model.Employee
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&emp).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("employee %q not found", id)
		}
		return nil, err
	}
	return &emp, nil
}

// NewEmployee is the input to CreateEmployee.
type NewEmployee struct {
	Name           string
	Email          string
	Password       string
	RoleName       string
	DepartmentName string
}

// CreateEmployee validates the signup input, auto-creates the role and
// department, hashes the password, and inserts the employee. Duplicate
// name/email surfaces as a Conflict.
func (d *Directory) CreateEmployee(ctx context.Context, in NewEmployee) (*model.Employee, error) {
	if err := validateEmployee(in); err != nil {
		return nil, err
	}

	tx := d.db.WithContext(ctx)
	role, err := d.EnsureRole(ctx, in.RoleName)
	if err != nil {
		return nil, err
	}
	dep, err := d.EnsureDepartment(ctx, in.DepartmentName)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	emp := &model.Employee{
		Name:         Normalize(in.Name),
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: string(hash),
		RoleID:       role.ID,
		DepartmentID: &dep.ID,
	}
	if err := tx.Create(emp).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict(err, "employee name or email already exists")
		}
		return nil, err
	}
	return emp, nil
}

func validateEmployee(in NewEmployee) error {
	if in.Name == "" || in.Email == "" || in.Password == "" || in.RoleName == "" || in.DepartmentName == "" {
		return apperr.Validation("", "all fields are required")
	}
	if !emailPattern.MatchString(in.Email) {
		return apperr.Validation("email", "invalid email format")
	}
	name := strings.TrimSpace(in.Name)
	if len(name) < 3 {
		return apperr.Validation("name", "username must be at least 3 characters long")
	}
	if strings.Contains(name, " ") {
		return apperr.Validation("name", "username must not contain spaces")
	}
	return validatePassword(in.Password)
}

func validatePassword(pw string) error {
	if len(pw) < 8 {
		return apperr.Validation("password", "password must be at least 8 characters long")
	}
	var upper, lower, digit, special bool
	for _, r := range pw {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(`!@#$%^&*(),.?":{}|<>`, r):
			special = true
		}
	}
	switch {
	case !upper:
		return apperr.Validation("password", "password must contain at least one uppercase letter")
	case !lower:
		return apperr.Validation("password", "password must contain at least one lowercase letter")
	case !digit:
		return apperr.Validation("password", "password must contain at least one digit")
	case !special:
		return apperr.Validation("password", "password must contain at least one special character")
	}
	return nil
}
