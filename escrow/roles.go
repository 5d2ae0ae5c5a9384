package escrow

// Role checks are explicit capability functions invoked at the top of each
// guarded operation; role state lives in the ledger.

// RequireOperator fails unless the caller holds the operator role.
func RequireOperator(l *Ledger, caller [20]byte) error {
	if caller != l.operator {
		return ErrUnauthorized
	}
	return nil
}

// RequireOwner fails unless the caller holds the owner role.
func RequireOwner(l *Ledger, caller [20]byte) error {
	if caller != l.owner {
		return ErrUnauthorized
	}
	return nil
}

// RequireOperatorOrOwner fails unless the caller holds either role.
func RequireOperatorOrOwner(l *Ledger, caller [20]byte) error {
	if caller != l.operator && caller != l.owner {
		return ErrUnauthorized
	}
	return nil
}
