package registration

import (
	sdkerrors "cosmossdk.io/errors"
)

const codespace = "registration"

// Saga failure classes. Everything before funding rolls back cleanly; a
// failure after funding leaves real costs behind and is surfaced as critical.
var (
	ErrInvalidRequest      = sdkerrors.Register(codespace, 2, "invalid registration request")
	ErrTopicUnavailable    = sdkerrors.Register(codespace, 3, "topic unavailable for registration")
	ErrWalletCreation      = sdkerrors.Register(codespace, 4, "wallet creation failed")
	ErrTreasuryUnavailable = sdkerrors.Register(codespace, 5, "treasury wallet unavailable")
	ErrFunding             = sdkerrors.Register(codespace, 6, "treasury funding failed")
	ErrWorkerRegistration  = sdkerrors.Register(codespace, 7, "worker registration failed after funding")
	ErrModelNotPersisted   = sdkerrors.Register(codespace, 8, "model persistence failed after funding")
)
