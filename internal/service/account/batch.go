package account

import (
	"context"
	"errors"

	"github.com/spectcast/identity/internal/domain"
)

// BatchReadLimit caps how many usernames one batch read may request.
const BatchReadLimit = 20

// BatchResult carries public projections for the usernames that exist.
// Partial is set when the store omitted keys; callers must treat a short
// response as partial, not failed.
type BatchResult struct {
	Data    []domain.PublicAccount `json:"data"`
	Partial bool                   `json:"partial"`
}

// BatchPublic reads public projections for up to BatchReadLimit usernames.
func (s Service) BatchPublic(ctx context.Context, usernames []string) (BatchResult, error) {
	if len(usernames) == 0 || len(usernames) > BatchReadLimit {
		return BatchResult{}, NewError(CodeValidation, errors.New("batch size out of range"))
	}
	accounts, err := s.store.BatchGet(ctx, usernames)
	if err != nil {
		return BatchResult{}, NewError(CodeDatabase, err)
	}
	result := BatchResult{Data: make([]domain.PublicAccount, 0, len(accounts))}
	for _, acc := range accounts {
		result.Data = append(result.Data, acc.Public())
	}
	result.Partial = len(result.Data) < len(usernames)
	return result, nil
}
