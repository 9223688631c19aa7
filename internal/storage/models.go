package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SwitchEvent is one audit entry for an account switch or Steam restart.
type SwitchEvent struct {
	ID          string    `json:"id"`
	SteamID     string    `json:"steamId,omitempty"`
	AccountName string    `json:"accountName,omitempty"`
	AppID       string    `json:"appId,omitempty"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
