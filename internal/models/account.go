package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RoleCustomer marks accounts created and managed by the reconciliation
// engine. Accounts holding any other role are never updated or deleted by it.
const RoleCustomer = "wave_customer"

// Account represents a local portal user joined to a Wave customer by
// normalized email.
type Account struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	Username     string    `json:"username" gorm:"not null;uniqueIndex"`
	Email        string    `json:"email" gorm:"not null;uniqueIndex"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role" gorm:"not null;index"`
	PasswordHash string    `json:"-"`

	// NotifiedInvoiceIDs is the durable dedup ledger for invoice alerts.
	// It only ever grows.
	NotifiedInvoiceIDs datatypes.JSONSlice[string] `json:"notified_invoice_ids"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *Account) TableName() string { return "accounts" }

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// IsSynced reports whether the reconciliation engine owns this account.
func (a *Account) IsSynced() bool {
	return a.Role == RoleCustomer
}

// HasNotified reports whether an invoice alert was already sent for id.
func (a *Account) HasNotified(id string) bool {
	for _, seen := range a.NotifiedInvoiceIDs {
		if seen == id {
			return true
		}
	}
	return false
}

// NormalizeEmail is the join key between remote customers and local
// accounts: trimmed and case-folded.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
