// This file implements first-run seeding of admin accounts.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mesh-intelligence/vetlab/pkg/types"
)

// seedUsername is the account created in every empty user table.
const seedUsername = "admin"

// seedAdmins creates one admin account in each user table that has no rows.
// Tables that already hold accounts are left alone, so re-running it is a
// no-op. Returns the names of the tables that were seeded.
func seedAdmins(db *sql.DB, password string, now time.Time) ([]string, error) {
	var hash []byte
	var seeded []string

	for _, name := range types.UserTables {
		var count int
		if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", name)).Scan(&count); err != nil {
			return seeded, fmt.Errorf("counting %s: %w", name, err)
		}
		if count > 0 {
			continue
		}
		if hash == nil {
			h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return seeded, fmt.Errorf("hashing admin password: %w", err)
			}
			hash = h
		}
		id, err := newID()
		if err != nil {
			return seeded, err
		}
		_, err = db.Exec(
			fmt.Sprintf("INSERT INTO %s (id, username, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?)", name),
			id, seedUsername, string(hash), types.RoleAdmin, formatTime(now),
		)
		if err != nil {
			return seeded, fmt.Errorf("seeding %s: %w", name, err)
		}
		seeded = append(seeded, name)
	}
	return seeded, nil
}
