package auth

import (
	"context"
	"errors"
	"fmt"
)

const (
	RoleAdmin     = "admin"
	RoleDoctor    = "doctor"
	RoleInsurance = "insurance"
	RolePharmacy  = "pharmacy"
	RolePatient   = "patient"
)

// Capability is a permission checked against a specific patient.
type Capability string

const (
	CapViewPatientData Capability = "view_patient_data"
	CapAnalyzeRisk     Capability = "analyze_risk"
)

// roleCapabilities lists what each role may do. Patients are additionally
// restricted to their own patient id.
var roleCapabilities = map[string][]Capability{
	RoleAdmin:     {CapViewPatientData, CapAnalyzeRisk},
	RoleDoctor:    {CapViewPatientData, CapAnalyzeRisk},
	RoleInsurance: {CapViewPatientData, CapAnalyzeRisk},
	RolePharmacy:  {CapViewPatientData},
	RolePatient:   {CapViewPatientData},
}

// ErrForbidden matches any *AuthorizationError via errors.Is.
var ErrForbidden = errors.New("forbidden")

// AuthorizationError reports a missing capability. It is final for the
// request and must not be retried.
type AuthorizationError struct {
	UserID     string
	Capability Capability
	PatientID  string
}

func (e *AuthorizationError) Error() string {
	if e.PatientID == "" {
		return fmt.Sprintf("user %q lacks %s", e.UserID, e.Capability)
	}
	return fmt.Sprintf("user %q lacks %s for patient %s", e.UserID, e.Capability, e.PatientID)
}

func (e *AuthorizationError) Is(target error) bool {
	return target == ErrForbidden
}

// Authorize checks that the caller in ctx holds capability for patientID.
// An empty patientID checks the capability without a patient binding, which
// patient-role callers never pass.
func Authorize(ctx context.Context, capability Capability, patientID string) error {
	roles := RolesFromContext(ctx)
	for _, role := range roles {
		if !roleGrants(role, capability) {
			continue
		}
		if role == RolePatient {
			own := PatientIDFromContext(ctx)
			if own == "" || patientID == "" || own != patientID {
				continue
			}
		}
		return nil
	}
	return &AuthorizationError{
		UserID:     UserIDFromContext(ctx),
		Capability: capability,
		PatientID:  patientID,
	}
}

func roleGrants(role string, capability Capability) bool {
	for _, c := range roleCapabilities[role] {
		if c == capability {
			return true
		}
	}
	return false
}
