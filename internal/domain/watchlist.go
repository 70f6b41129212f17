package domain

import (
	"errors"
	"strings"
	"time"
)

var ErrAccountNotFound = errors.New("account not found")

type WatchlistEntry struct {
	AccountID   string    `db:"account_id" json:"-"`
	Symbol      string    `db:"symbol" json:"symbol"`
	CompanyName string    `db:"company_name" json:"company"`
	AddedAt     time.Time `db:"added_at" json:"added_at"`
}

type AddResult string

const (
	AddCreated        AddResult = "created"
	AddAlreadyPresent AddResult = "already_present"
)

type RemoveResult string

const (
	RemoveRemoved    RemoveResult = "removed"
	RemoveNotPresent RemoveResult = "not_present"
)

type Account struct {
	ID    string `db:"id"`
	Email string `db:"email"`
	Name  string `db:"name"`
}

// NormalizeSymbol trims and upper-cases a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
