package models

import "time"

// Setting keys consumed by the service. The settings table is an opaque
// key/value store; callers treat values as strings.
const (
	SettingClientID         = "wave_client_id"
	SettingClientSecret     = "wave_client_secret"
	SettingRedirectURI      = "wave_redirect_uri"
	SettingAccessToken      = "wave_access_token"
	SettingRefreshToken     = "wave_refresh_token"
	SettingTokenLastUpdated = "wave_token_last_updated"
	SettingBusinessID       = "wave_connected_business_id"
	SettingBusinessName     = "wave_connected_business_name"
)

// Setting is a persisted key/value pair.
type Setting struct {
	Key       string    `json:"key" gorm:"primaryKey"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Setting) TableName() string { return "settings" }
