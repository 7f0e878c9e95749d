package models

import "strings"

// Identity represents a user account as stored by the backend.
// The sync engine reads identities but never mutates them.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// ResolveDisplayName returns the best human-readable name for an identity:
// the display name when set, otherwise the local part of the email address,
// otherwise "Unknown".
func (i Identity) ResolveDisplayName() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	if i.Email != "" {
		if at := strings.Index(i.Email, "@"); at > 0 {
			return i.Email[:at]
		}
		return i.Email
	}
	return UnknownSenderName
}

// UnknownSenderName is used when no identity record resolves for a sender.
const UnknownSenderName = "Unknown"
