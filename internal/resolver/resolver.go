// Package resolver maps opaque customer identifiers (numeric id, email or
// free-text name) to exactly one CRM customer record.
package resolver

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/prompt-general/pulsecheck/pkg/models"
)

// Store is the customer lookup surface the resolver needs.
type Store interface {
	GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error)
	GetCustomerByEmail(ctx context.Context, email string) (*models.Customer, error)
	SearchCustomersByName(ctx context.Context, name string) ([]models.Customer, error)
}

// Resolver resolves identifiers against the customer store.
type Resolver struct {
	store Store
}

// New creates a resolver backed by the given store.
func New(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve maps an identifier to a single customer or fails with
// *models.CustomerNotFoundError. Resolution order: numeric id, email,
// exact name (case-insensitive), fuzzy name match.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (models.Resolution, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return models.Resolution{}, &models.ValidationError{Field: "identifier", Reason: "must not be empty"}
	}

	if id, err := strconv.ParseInt(identifier, 10, 64); err == nil {
		customer, err := r.store.GetCustomerByID(ctx, id)
		if err != nil {
			return models.Resolution{}, fmt.Errorf("failed to look up customer by id: %w", err)
		}
		if customer == nil {
			return models.Resolution{}, &models.CustomerNotFoundError{Identifier: identifier}
		}
		return models.Resolution{Customer: *customer, MatchType: models.MatchID}, nil
	}

	if strings.Contains(identifier, "@") {
		customer, err := r.store.GetCustomerByEmail(ctx, strings.ToLower(identifier))
		if err != nil {
			return models.Resolution{}, fmt.Errorf("failed to look up customer by email: %w", err)
		}
		if customer == nil {
			return models.Resolution{}, &models.CustomerNotFoundError{Identifier: identifier}
		}
		return models.Resolution{Customer: *customer, MatchType: models.MatchEmail}, nil
	}

	candidates, err := r.store.SearchCustomersByName(ctx, identifier)
	if err != nil {
		return models.Resolution{}, fmt.Errorf("failed to search customers by name: %w", err)
	}
	if len(candidates) == 0 {
		return models.Resolution{}, &models.CustomerNotFoundError{Identifier: identifier}
	}

	for _, c := range candidates {
		if strings.EqualFold(c.Name, identifier) {
			return models.Resolution{Customer: c, MatchType: models.MatchName}, nil
		}
	}

	return models.Resolution{Customer: bestFuzzyMatch(candidates), MatchType: models.MatchFuzzy}, nil
}

// bestFuzzyMatch picks the candidate whose name is shortest, i.e. closest
// in length to the query it already contains. Ties break on the lowest id
// so repeated calls stay deterministic.
func bestFuzzyMatch(candidates []models.Customer) models.Customer {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if len(c.Name) < len(best.Name) || (len(c.Name) == len(best.Name) && c.ID < best.ID) {
			best = c
		}
	}
	return best
}
