package store

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/birdielabs/waveportal/internal/models"
)

// AccountStore is the gorm-backed local account directory.
type AccountStore struct {
	db *gorm.DB
}

// NewAccountStore creates an account store.
func NewAccountStore(db *gorm.DB) *AccountStore {
	return &AccountStore{db: db}
}

// FindByEmail looks up an account by normalized email. Stored emails keep
// the provider's casing, so the comparison is case-insensitive. Returns
// (nil, nil) when no account exists.
func (s *AccountStore) FindByEmail(email string) (*models.Account, error) {
	var account models.Account
	err := s.db.Where("LOWER(email) = ?", models.NormalizeEmail(email)).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by email: %w", err)
	}
	return &account, nil
}

// ListByRole returns all accounts holding the given role, in creation order.
func (s *AccountStore) ListByRole(role string) ([]models.Account, error) {
	var accounts []models.Account
	if err := s.db.Where("role = ?", role).Order("created_at ASC").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to list accounts by role: %w", err)
	}
	return accounts, nil
}

// UsernameExists reports whether a username is already taken.
func (s *AccountStore) UsernameExists(username string) (bool, error) {
	var count int64
	if err := s.db.Model(&models.Account{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return count > 0, nil
}

// Create inserts a new account.
func (s *AccountStore) Create(account *models.Account) error {
	if err := s.db.Create(account).Error; err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// Update persists name changes on an existing account.
func (s *AccountStore) Update(account *models.Account) error {
	if err := s.db.Save(account).Error; err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return nil
}

// Delete removes an account.
func (s *AccountStore) Delete(account *models.Account) error {
	if err := s.db.Delete(account).Error; err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}

// SaveNotifiedInvoices persists the notification ledger for an account.
func (s *AccountStore) SaveNotifiedInvoices(account *models.Account) error {
	err := s.db.Model(account).Update("notified_invoice_ids", account.NotifiedInvoiceIDs).Error
	if err != nil {
		return fmt.Errorf("failed to save notification ledger: %w", err)
	}
	return nil
}
