// Package migration moves consolidated claim records into the relational
// claims schema: member and provider resolution, lot assignment, the ordered
// multi-table claim write, and batch orchestration with failure isolation.
package migration

import "fmt"

// MemberNotFoundError is raised when no member matches the claim's member
// number. Claim-fatal, run-continuing. The message text is load-bearing: the
// failure segregation pass groups on the part before the colon.
type MemberNotFoundError struct {
	MemberNumber string
}

func (e *MemberNotFoundError) Error() string {
	return fmt.Sprintf("Member not found for memberNumber: %s", e.MemberNumber)
}

// ProviderNotFoundError is raised when the claim's service provider matches
// no provider row by name or id. Claim-fatal, run-continuing.
type ProviderNotFoundError struct {
	Provider string
}

func (e *ProviderNotFoundError) Error() string {
	return fmt.Sprintf("Provider not found for serviceProvider: %s", e.Provider)
}

// PhaseError wraps a run-fatal failure with the phase it occurred in.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}
