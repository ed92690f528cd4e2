// Tests for first-run admin seeding.
package sqlite

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mesh-intelligence/vetlab/pkg/types"
)

func getUser(t *testing.T, db *sql.DB, table, username string) *types.User {
	t.Helper()
	var u types.User
	var created string
	err := db.QueryRow(
		fmt.Sprintf("SELECT id, username, password_hash, role, created_at FROM %s WHERE username = ?", table),
		username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &created)
	require.NoError(t, err)
	u.CreatedAt = parseTime(created)
	return &u
}

func TestSeedAdmins_EveryUserTable(t *testing.T) {
	b, _ := setupBackend(t)

	for _, table := range types.UserTables {
		t.Run(table, func(t *testing.T) {
			u := getUser(t, b.db, table, seedUsername)
			assert.Equal(t, types.RoleAdmin, u.Role)
			assert.NotEqual(t, types.DefaultAdminPassword, u.PasswordHash, "stored hashed")
			assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(types.DefaultAdminPassword)))
		})
	}
}

func TestSeedAdmins_CustomPassword(t *testing.T) {
	dir := t.TempDir()
	b := NewBackend()
	cfg := testConfig(dir)
	cfg.AdminPassword = "s3cret-intake"
	require.NoError(t, b.Attach(cfg))
	defer b.Detach()

	u := getUser(t, b.db, types.UserTableQuarantine, seedUsername)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("s3cret-intake")))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(types.DefaultAdminPassword)))
}

func TestSeedAdmins_OnlyEmptyTables(t *testing.T) {
	b, _ := setupBackend(t)

	// Remove the lab admin but keep a different lab account.
	_, err := b.db.Exec("DELETE FROM users")
	require.NoError(t, err)
	_, err = b.db.Exec(
		"INSERT INTO users (id, username, password_hash, role, created_at) VALUES ('u1', 'tech', 'x', ?, ?)",
		types.RoleStaff, formatTime(b.now()),
	)
	require.NoError(t, err)

	seeded, err := seedAdmins(b.db, "pw", b.now())
	require.NoError(t, err)
	assert.Empty(t, seeded)

	var n int
	require.NoError(t, b.db.QueryRow("SELECT COUNT(*) FROM users WHERE username = ?", seedUsername).Scan(&n))
	assert.Zero(t, n, "a table with accounts is left alone")

	_, err = b.db.Exec("DELETE FROM vet_users")
	require.NoError(t, err)
	seeded, err = seedAdmins(b.db, "pw", b.now())
	require.NoError(t, err)
	assert.Equal(t, []string{types.UserTableQuarantine}, seeded)
	assert.Equal(t, 1, countRows(t, b, types.UserTableQuarantine))
}
