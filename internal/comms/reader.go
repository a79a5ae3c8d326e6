// Package comms exposes the communication-history collaborator: recent
// customer email traffic used as a complaint signal by the status
// classifier and the summary composer.
package comms

import "context"

// EmailMessage is one message from the customer's communication history.
// Only the snippet is kept; bodies stay in the upstream mailbox.
type EmailMessage struct {
	Snippet string `json:"snippet"`
}

// Meta reports whether the collaborator is configured for this tenant.
// Enabled=false means the signal is absent, not that there are no
// complaints.
type Meta struct {
	Enabled bool `json:"enabled"`
}

// History is the communication history for one customer.
type History struct {
	Messages      []EmailMessage `json:"messages"`
	TotalMessages int            `json:"total_messages"`
	Meta          Meta           `json:"_meta"`
}

// Reader fetches communication history for a customer.
type Reader interface {
	History(ctx context.Context, customerID int64, maxResults int) (History, error)
}

// Disabled returns a Reader for tenants without a configured mailbox. It
// always reports Enabled=false and never fails.
func Disabled() Reader {
	return disabledReader{}
}

type disabledReader struct{}

func (disabledReader) History(ctx context.Context, customerID int64, maxResults int) (History, error) {
	return History{Meta: Meta{Enabled: false}}, nil
}
