package chainclient

import "context"

// ChainBridge is the full surface this service needs from the network.
// Reads return (nil, nil) or (0, false, nil) style "absent" results rather
// than errors, because missing chain state is an expected condition the
// callers defer on. Writes are signed locally from the supplied mnemonic.
type ChainBridge interface {
	GetTopicDetails(ctx context.Context, topicId uint64) (*TopicDetails, error)
	GetCurrentBlockHeight(ctx context.Context) (int64, error)

	GetActiveInferers(ctx context.Context, topicId uint64) ([]string, error)
	GetActiveForecasters(ctx context.Context, topicId uint64) ([]string, error)
	GetActiveReputers(ctx context.Context, topicId uint64) ([]string, error)

	// DeriveLatestOpenWorkerNonce returns the newest unfulfilled nonce height
	// for the topic; found is false when no slot is open.
	DeriveLatestOpenWorkerNonce(ctx context.Context, topicId uint64) (nonce int64, found bool, err error)

	SubmitWorkerPayload(ctx context.Context, mnemonic string, topicId uint64, payload *WorkerPayload, gasPrice uint64, nonce int64) (*TxResult, error)
	TransferFunds(ctx context.Context, fromMnemonic string, toAddress string, amount int64) (*TxResult, error)
	// RegisterWorker returns ErrWorkerAlreadyRegistered when the address is
	// already known to the topic; callers treat that as success.
	RegisterWorker(ctx context.Context, mnemonic string, topicId uint64) (*TxResult, error)

	GetWorkerPerformance(ctx context.Context, topicId uint64, address string) (*WorkerPerformance, error)
}
