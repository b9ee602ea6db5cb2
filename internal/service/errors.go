package service

import (
	"errors"

	"github.com/iliyamo/cinema-scheduling/internal/apperr"
	"github.com/iliyamo/cinema-scheduling/internal/repository"
)

// wrap leaves typed errors alone and turns anything else into an
// INTERNAL_ERROR that keeps the cause for logging.
func wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	return apperr.Internal(msg, err)
}

// notFound maps a repository sentinel to a NOT_FOUND error for the
// resource; other errors pass through wrap.
func notFound(err error, sentinel error, resource string, id uint64) error {
	if errors.Is(err, sentinel) {
		return apperr.NotFound(resource, id)
	}
	return wrap(err, "load "+resource)
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrScreeningNotFound) ||
		errors.Is(err, repository.ErrPurchaseNotFound) ||
		errors.Is(err, repository.ErrMovieNotFound) ||
		errors.Is(err, repository.ErrRoomNotFound) ||
		errors.Is(err, repository.ErrUserNotFound)
}
