// internal/config/database.go
package config

import (
	"fmt"
)

// Order timestamps and report periods are stored in UTC.
const dbTimeZone = "UTC"

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s application_name=farmers-market",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode, dbTimeZone,
	)
}

// Target identifies the database in logs without the password.
func (d *DatabaseConfig) Target() string {
	return fmt.Sprintf("%s@%s:%s/%s", d.User, d.Host, d.Port, d.Database)
}
