// Package repository implements persistence on MySQL through
// database/sql.  This file defines the sentinel errors shared by every
// repository (and by the embedded store in memstore) so the engines can
// tell a missing row from a failing database.
package repository

import "errors"

// Not-found sentinels.  Engines translate them into NOT_FOUND errors.
var (
	ErrMovieNotFound     = errors.New("movie not found")
	ErrRoomNotFound      = errors.New("room not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrScreeningNotFound = errors.New("screening not found")
	ErrPurchaseNotFound  = errors.New("purchase not found")
)

// ErrEmailExists is returned when registering an email that is taken.
var ErrEmailExists = errors.New("email already exists")

// ErrTokenInvalid is returned for unknown, expired or revoked refresh tokens.
var ErrTokenInvalid = errors.New("refresh token invalid")

// ErrNoTx is returned by locking reads issued outside WithTx.  A row
// lock without a transaction would be released immediately.
var ErrNoTx = errors.New("locking read requires a transaction")
