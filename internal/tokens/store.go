package tokens

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/birdielabs/waveportal/internal/models"
)

// Credential is the full stored OAuth credential. The refresh token never
// leaves this package and the Manager.
type Credential struct {
	ClientID      string
	ClientSecret  string
	RedirectURI   string
	AccessToken   string
	RefreshToken  string
	LastRefreshed string
}

// Complete reports whether every field needed for a refresh is present.
func (c *Credential) Complete() bool {
	return c.ClientID != "" && c.ClientSecret != "" &&
		c.AccessToken != "" && c.RefreshToken != ""
}

// Store persists the OAuth credential pair and client registration in the
// settings table. No business logic lives here.
type Store struct {
	db *gorm.DB
}

// NewStore creates a settings-backed credential store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) get(key string) (string, error) {
	var setting models.Setting
	err := s.db.Where("key = ?", key).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return setting.Value, nil
}

func (s *Store) set(key, value string) error {
	setting := models.Setting{Key: key, Value: value}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// Load reads the stored credential. Missing keys come back as empty
// strings; the caller decides whether that is fatal.
func (s *Store) Load() (*Credential, error) {
	cred := &Credential{}
	fields := []struct {
		key string
		dst *string
	}{
		{models.SettingClientID, &cred.ClientID},
		{models.SettingClientSecret, &cred.ClientSecret},
		{models.SettingRedirectURI, &cred.RedirectURI},
		{models.SettingAccessToken, &cred.AccessToken},
		{models.SettingRefreshToken, &cred.RefreshToken},
		{models.SettingTokenLastUpdated, &cred.LastRefreshed},
	}
	for _, f := range fields {
		v, err := s.get(f.key)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}
	return cred, nil
}

// SaveClient stores the OAuth client registration entered by the admin.
func (s *Store) SaveClient(clientID, clientSecret, redirectURI string) error {
	if err := s.set(models.SettingClientID, clientID); err != nil {
		return err
	}
	if err := s.set(models.SettingClientSecret, clientSecret); err != nil {
		return err
	}
	return s.set(models.SettingRedirectURI, redirectURI)
}

// SaveTokens persists a token pair after an exchange or refresh. An empty
// refreshToken leaves the stored refresh token untouched, since some
// providers only re-issue it on the initial exchange.
func (s *Store) SaveTokens(accessToken, refreshToken string) error {
	if err := s.set(models.SettingAccessToken, accessToken); err != nil {
		return err
	}
	if refreshToken != "" {
		if err := s.set(models.SettingRefreshToken, refreshToken); err != nil {
			return err
		}
	}
	return s.set(models.SettingTokenLastUpdated, time.Now().UTC().Format(time.RFC3339))
}

// SaveBusiness records the connected business captured during the OAuth
// callback.
func (s *Store) SaveBusiness(id, name string) error {
	if err := s.set(models.SettingBusinessID, id); err != nil {
		return err
	}
	return s.set(models.SettingBusinessName, name)
}

// Business returns the connected business id and name.
func (s *Store) Business() (id, name string, err error) {
	if id, err = s.get(models.SettingBusinessID); err != nil {
		return "", "", err
	}
	if name, err = s.get(models.SettingBusinessName); err != nil {
		return "", "", err
	}
	return id, name, nil
}

// Clear removes every stored credential and connection setting. Used by the
// explicit disconnect action.
func (s *Store) Clear() error {
	keys := []string{
		models.SettingClientID,
		models.SettingClientSecret,
		models.SettingRedirectURI,
		models.SettingAccessToken,
		models.SettingRefreshToken,
		models.SettingTokenLastUpdated,
		models.SettingBusinessID,
		models.SettingBusinessName,
	}
	if err := s.db.Where("key IN ?", keys).Delete(&models.Setting{}).Error; err != nil {
		return fmt.Errorf("failed to clear wave settings: %w", err)
	}
	return nil
}
