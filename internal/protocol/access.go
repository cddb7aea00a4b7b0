package protocol

import "github.com/ethereum/go-ethereum/common"

// AccessController is the two-level capability check spec.md's design
// notes call for: an owner who can add/remove admins and cannot itself be
// removed, and a set of admins who can mutate records. It is a small
// value type embedded by every aggregate that needs admin gating, the
// same owner/admin split the teacher expresses through its single
// adminKey plus per-voter identity.
type AccessController struct {
	owner  common.Address
	admins map[common.Address]bool
}

// NewAccessController creates a controller with owner as the sole owner
// and initial admin.
func NewAccessController(owner common.Address) *AccessController {
	return &AccessController{
		owner:  owner,
		admins: map[common.Address]bool{owner: true},
	}
}

// Owner returns the controller's immutable owner.
func (a *AccessController) Owner() common.Address { return a.owner }

// IsOwner reports whether addr is the owner.
func (a *AccessController) IsOwner(addr common.Address) bool { return addr == a.owner }

// IsAdmin reports whether addr holds the admin capability.
func (a *AccessController) IsAdmin(addr common.Address) bool { return a.admins[addr] }

// AddAdmin grants addr the admin capability. Owner-only.
func (a *AccessController) AddAdmin(caller, addr common.Address) *Error {
	if !a.IsOwner(caller) {
		return ErrNotOwner
	}
	a.admins[addr] = true
	return nil
}

// RemoveAdmin revokes addr's admin capability. Owner-only; the owner can
// never be removed: an attempt to remove the owner fails with NotOwner.
func (a *AccessController) RemoveAdmin(caller, addr common.Address) *Error {
	if !a.IsOwner(caller) {
		return ErrNotOwner
	}
	if addr == a.owner {
		return newErr(KindNotOwner, "owner cannot be removed as admin")
	}
	delete(a.admins, addr)
	return nil
}

// RequireAdmin returns ErrNotAdmin unless caller currently holds the admin
// capability.
func (a *AccessController) RequireAdmin(caller common.Address) *Error {
	if !a.IsAdmin(caller) {
		return ErrNotAdmin
	}
	return nil
}

// Admins returns every address currently holding the admin capability, in
// no particular order. Used by snapshotting and read-only introspection.
func (a *AccessController) Admins() []common.Address {
	out := make([]common.Address, 0, len(a.admins))
	for addr := range a.admins {
		out = append(out, addr)
	}
	return out
}
