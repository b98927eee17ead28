// SPDX-License-Identifier: MIT

package razer

import (
	"github.com/gamelinkhq/gamelink/internal/hostdb"
	"github.com/gamelinkhq/gamelink/internal/locale"
)

// Availability decides whether a federated pair attempt can proceed
// against a host, returning the operator-facing reason when it cannot.
func Availability(mode hostdb.FederatedPairMode, pairState hostdb.PairState, sameIdentity bool) (bool, string) {
	switch mode {
	case hostdb.FederatedDisabled:
		return false, locale.MsgIdentityDisabled
	case hostdb.FederatedUnknown:
		return false, locale.MsgIdentityModeFailed
	}
	// A host already paired under a different account identity refuses
	// federated re-pairing until it is unpaired there.
	if pairState == hostdb.Paired && !sameIdentity {
		return false, locale.MsgIdentityMismatch
	}
	return true, ""
}
