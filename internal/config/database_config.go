package config

type DatabaseConfig interface {
	GetDatabaseDSN() string
	GetPasswordHasher() string
}

type Database struct{}

var _ DatabaseConfig = Database{}

// GetDatabaseDSN returns the Postgres DSN. Empty selects the in-memory user store.
func (Database) GetDatabaseDSN() string {
	return GetEnv("DATABASE_DSN", "")
}

func (Database) GetPasswordHasher() string {
	return GetEnv("PASSWORD_HASHER", "bcrypt")
}
