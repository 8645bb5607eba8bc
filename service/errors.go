package service

import (
	"errors"
	"fmt"

	"casefile-backend/repository"
)

var (
	ErrCaseNotFound     = errors.New("case not found")
	ErrEvidenceNotFound = errors.New("evidence not found")
	ErrCardNotFound     = errors.New("evidence card not found")
	ErrTemplateNotFound = errors.New("card slot template not found")
	ErrTaskNotFound     = errors.New("casting task not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotConfigured    = errors.New("service dependency not configured")
)

// lookupError maps a repository miss to the given sentinel and wraps anything else
func lookupError(err, missing error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return missing
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
