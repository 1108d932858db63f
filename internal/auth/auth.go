package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/YoussefKhaledS/Document-Repository/internal/model"
)

// ErrInvalidCredentials is returned for both unknown emails and wrong
// passwords so responses cannot be used to probe for accounts.
var ErrInvalidCredentials = errors.New("invalid email or password")

// Verifier checks login credentials against the employees table.
type Verifier struct {
	db *gorm.DB
}

// NewVerifier creates a Verifier backed by the given GORM DB.
func NewVerifier(db *gorm.DB) *Verifier {
	return &Verifier{db: db}
}

// Verify returns the employee (with role and department preloaded) when the
// email and password match, and ErrInvalidCredentials otherwise.
func (v *Verifier) Verify(ctx context.Context, email, password string) (*model.Employee, error) {
	var emp model.Employee
	err := v.db.WithContext(ctx).Preload("Role").Preload("Department").
		Where("email = ?", email).First(&emp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(emp.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &emp, nil
}
