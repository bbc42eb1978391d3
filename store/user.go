package store

import (
	"math/rand/v2"

	"github.com/google/uuid"
)

var (
	UserColors = []string{"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4", "#FFEAA7", "#DDA0DD", "#98D8C8"}
	UserNames  = []string{"Alice", "Bob", "Charlie", "Diana", "Eve", "Frank", "Grace"}
)

// GenerateUser returns a user with a fresh id and a random name and color.
func GenerateUser() User {
	return User{
		ID:    uuid.NewString(),
		Name:  UserNames[rand.IntN(len(UserNames))],
		Color: UserColors[rand.IntN(len(UserColors))],
	}
}

// RandomColor picks a color from the palette.
func RandomColor() string {
	return UserColors[rand.IntN(len(UserColors))]
}
