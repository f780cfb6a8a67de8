// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"errors"

	"github.com/okian/brewtaste/internal/adapters/repository"
	"github.com/okian/brewtaste/internal/domain/similarity"
)

// isNotFound translates upstream not-found errors to 404 responses.
func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound) || errors.Is(err, similarity.ErrNotFound)
}
