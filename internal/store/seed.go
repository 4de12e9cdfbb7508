package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Credential is a username with its plaintext password, used for seeding.
type Credential struct {
	Username string
	Password string
}

// SampleUsers are inserted by Seed into an empty database.
var SampleUsers = []Credential{
	{Username: "admin", Password: "admin123"},
	{Username: "user1", Password: "user123"},
	{Username: "user2", Password: "user456"},
}

// Seed inserts users, hashing each password with hash, when the users table
// is empty. It reports whether anything was inserted.
func (s *Store) Seed(ctx context.Context, users []Credential, hash func(string) (string, error)) (bool, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	rows := make([]User, 0, len(users))
	for _, c := range users {
		h, err := hash(c.Password)
		if err != nil {
			return false, fmt.Errorf("hash %s: %w", c.Username, err)
		}
		rows = append(rows, User{Username: c.Username, PasswordHash: h})
	}
	if len(rows) == 0 {
		return false, nil
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
