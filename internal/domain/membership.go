package domain

import "time"

type MembershipAction string

const (
	MembershipAdded   MembershipAction = "added"
	MembershipRemoved MembershipAction = "removed"
)

// MembershipChangeEvent announces a successful watchlist mutation.
type MembershipChangeEvent struct {
	AccountID   string           `json:"-"`
	Symbol      string           `json:"symbol"`
	CompanyName string           `json:"company"`
	Action      MembershipAction `json:"action"`
	OccurredAt  time.Time        `json:"occurred_at"`
}
