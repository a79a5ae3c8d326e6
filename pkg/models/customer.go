package models

// Customer is a read-only CRM record. PulseCheck never mutates customers;
// they are owned by the upstream billing system.
type Customer struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// MatchType describes how an identifier was resolved to a customer.
type MatchType string

const (
	MatchID    MatchType = "id"
	MatchEmail MatchType = "email"
	MatchName  MatchType = "name"
	MatchFuzzy MatchType = "fuzzy"
)

// Resolution is the result of resolving an opaque identifier.
type Resolution struct {
	Customer  Customer  `json:"customer"`
	MatchType MatchType `json:"match_type"`
}
