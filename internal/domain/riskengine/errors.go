package riskengine

import (
	"errors"
	"fmt"
)

// ErrSummaryNotFound matches any *NotFoundError via errors.Is.
var ErrSummaryNotFound = errors.New("health summary not found")

// NotFoundError reports that no health summary exists for a patient.
type NotFoundError struct {
	PatientID string
}

func (e *NotFoundError) Error() string {
	if e.PatientID == "" {
		return ErrSummaryNotFound.Error()
	}
	return fmt.Sprintf("health summary not found for patient %s", e.PatientID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrSummaryNotFound
}

// ErrCatalogConfiguration matches any *CatalogConfigurationError via errors.Is.
var ErrCatalogConfiguration = errors.New("plan catalog misconfigured")

// CatalogConfigurationError is a deployment fault: the plan catalog cannot
// serve plan selection. It is never a per-patient condition.
type CatalogConfigurationError struct {
	Version string
	Reason  string
}

func (e *CatalogConfigurationError) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("plan catalog misconfigured: %s", e.Reason)
	}
	return fmt.Sprintf("plan catalog %s misconfigured: %s", e.Version, e.Reason)
}

func (e *CatalogConfigurationError) Is(target error) bool {
	return target == ErrCatalogConfiguration
}
