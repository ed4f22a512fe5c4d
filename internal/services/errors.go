package services

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrValidation           = errors.New("validation failed")
	ErrParse                = errors.New("malformed document")
	ErrConfirmationRequired = errors.New("destructive import requires confirmation")
)

func newID() string {
	return uuid.New().String()
}
