package types

import "errors"

// Config holds backend selection and parameters for Store.Attach.
type Config struct {
	Backend string `json:"backend" yaml:"backend"`
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// AdminPassword is hashed into the seeded admin account of every user
	// table that is empty on first run. Empty means DefaultAdminPassword.
	AdminPassword string `json:"admin_password,omitempty" yaml:"admin_password,omitempty"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
)

// DefaultAdminPassword is used for seeded accounts when Config.AdminPassword
// is empty. Operators are expected to change it after first login.
const DefaultAdminPassword = "admin"

// Config validation errors.
var (
	ErrBackendEmpty   = errors.New("backend must not be empty")
	ErrBackendUnknown = errors.New("unknown backend")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	return nil
}

// GetAdminPassword returns the configured admin password or the default.
func (c Config) GetAdminPassword() string {
	if c.AdminPassword == "" {
		return DefaultAdminPassword
	}
	return c.AdminPassword
}
