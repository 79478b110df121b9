package testutil

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// D parses a decimal literal and panics on malformed input.
func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Actor returns an actor holding perms.
func Actor(id int64, perms ...string) shared.Actor {
	return shared.Actor{ID: id, Role: "tester", Permissions: perms}
}

// Superuser returns an actor holding every permission in the given scopes.
func Superuser(id int64, scopes ...[]string) shared.Actor {
	var perms []string
	for _, scope := range scopes {
		perms = append(perms, scope...)
	}
	return shared.Actor{ID: id, Role: "admin", Permissions: perms}
}

// Logger returns a logger that drops every record.
func Logger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
