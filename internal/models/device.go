package models

import (
	"encoding/json"
	"time"
)

// Device is an entry of the kitchen device catalog.
type Device struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	Protocol   string          `json:"protocol"`
	Status     string          `json:"status"` // online while its emitter is running
	LastActive *time.Time      `json:"last_active,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"` // Latest sent payload
}
