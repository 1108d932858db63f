// Package seed establishes baseline roles and departments and creates a
// default admin employee on first boot when the employees table is empty.
package seed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/YoussefKhaledS/Document-Repository/internal/model"
)

// baselineRoles are created on every startup; employees reference them by name.
var baselineRoles = []string{"admin", "manager", "user"}

// baselineDepartments are created on every startup so fresh installs have
// somewhere to scope documents to.
var baselineDepartments = []string{"hr", "it", "finance", "legal", "sales"}

// AdminOptions configures the seed admin employee.
type AdminOptions struct {
	Email    string
	Password string // if empty, a random password is generated
}

// Ensure creates the baseline roles and departments, then a seed admin
// employee if no employees exist. The generated password is printed to stdout
// exactly once. The function is idempotent and safe to call on every startup.
func Ensure(ctx context.Context, db *gorm.DB, opts AdminOptions, log *slog.Logger) error {
	tx := db.WithContext(ctx)

	for _, name := range baselineRoles {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).Create(&model.Role{Name: name}).Error; err != nil {
			return fmt.Errorf("seed role %q: %w", name, err)
		}
	}
	for _, name := range baselineDepartments {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).Create(&model.Department{Name: name}).Error; err != nil {
			return fmt.Errorf("seed department %q: %w", name, err)
		}
	}

	var count int64
	if err := tx.Model(&model.Employee{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count employees: %w", err)
	}
	if count > 0 {
		log.Info("seed admin already exists")
		return nil
	}

	password := opts.Password
	if password == "" {
		var err error
		password, err = generatePassword()
		if err != nil {
			return fmt.Errorf("generate seed password: %w", err)
		}
		fmt.Printf("[docrepo] seed admin password: %s\n", password)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}

	var adminRole model.Role
	if err := tx.Where("name = ?", "admin").First(&adminRole).Error; err != nil {
		return fmt.Errorf("load admin role: %w", err)
	}

	emp := &model.Employee{
		Name:         "admin",
		Email:        opts.Email,
		PasswordHash: string(hash),
		RoleID:       adminRole.ID,
	}
	if err := tx.Create(emp).Error; err != nil {
		return fmt.Errorf("insert seed admin: %w", err)
	}

	log.Info("seed admin created", "email", opts.Email)
	return nil
}

func generatePassword() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
