package chainclient

import "errors"

var (
	ErrWorkerAlreadyRegistered = errors.New("worker already registered for topic")
	ErrTxRejected              = errors.New("transaction rejected by chain")
	ErrUnexpectedStatus        = errors.New("unexpected status code from chain gateway")
)
