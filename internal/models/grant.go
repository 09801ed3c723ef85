package models

import "time"

// Grant is the provider's handle for one connected mailbox account
type Grant struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Provider    string    `json:"provider"`
	AccessToken string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}
