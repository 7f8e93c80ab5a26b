// Package lifecycle holds the account status state machine.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/kiranshivaraju/inventomatic/pkg/models"
)

// ErrInvalidTransition is returned when an event is not accepted in the current status.
var ErrInvalidTransition = errors.New("invalid account status transition")

// Event drives a status transition.
type Event string

const (
	// CredentialSet: the principal chose a permanent credential.
	CredentialSet Event = "CREDENTIAL_SET"
	// ResetForced: an authorized actor issued a temporary credential.
	ResetForced Event = "RESET_FORCED"
	Deactivated Event = "DEACTIVATED"
	Reactivated Event = "REACTIVATED"
)

type edge struct {
	from  models.AccountStatus
	event Event
}

var transitions = map[edge]models.AccountStatus{
	{models.StatusPendingActivation, CredentialSet}:  models.StatusActive,
	{models.StatusForcePasswordReset, CredentialSet}: models.StatusActive,

	{models.StatusActive, ResetForced}:             models.StatusForcePasswordReset,
	{models.StatusPendingActivation, ResetForced}:  models.StatusPendingActivation,
	{models.StatusForcePasswordReset, ResetForced}: models.StatusForcePasswordReset,

	// Only ACTIVE may be deactivated. Reactivated always lands in ACTIVE, so
	// an account still holding a temporary credential must never reach INACTIVE.
	{models.StatusActive, Deactivated}:   models.StatusInactive,
	{models.StatusInactive, Reactivated}: models.StatusActive,
}

// Next returns the status reached by applying event in status from.
func Next(from models.AccountStatus, event Event) (models.AccountStatus, error) {
	to, ok := transitions[edge{from, event}]
	if !ok {
		return "", fmt.Errorf("%w: %s from %s", ErrInvalidTransition, event, from)
	}
	return to, nil
}

// EventFor maps a requested status change to the event that produces it.
func EventFor(newStatus models.AccountStatus) (Event, error) {
	switch newStatus {
	case models.StatusActive:
		return Reactivated, nil
	case models.StatusInactive:
		return Deactivated, nil
	}
	return "", fmt.Errorf("%w: status %s is not directly settable", ErrInvalidTransition, newStatus)
}

// CanAuthenticate reports whether p may authenticate at all. An inactive
// tenant locks out every principal that belongs to it; tenant is nil for ADMIN.
func CanAuthenticate(tenant *models.Tenant, p *models.Principal) bool {
	if p.AccountStatus == models.StatusInactive || !p.AccountStatus.Valid() {
		return false
	}
	if p.Role == models.RoleAdmin {
		return p.TenantID == nil
	}
	return tenant != nil && p.InTenant(tenant.ID) && tenant.IsActive
}

// RequiresCredentialChange reports whether p must set a credential before
// reaching anything else.
func RequiresCredentialChange(p *models.Principal) bool {
	return p.AccountStatus == models.StatusPendingActivation ||
		p.AccountStatus == models.StatusForcePasswordReset
}
