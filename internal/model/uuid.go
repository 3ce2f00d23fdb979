package model

import "github.com/google/uuid"

// GenerateID creates a new UUID string for locally created items.
func GenerateID() string {
	return uuid.New().String()
}
