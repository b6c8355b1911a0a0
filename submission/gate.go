package submission

import (
	"context"

	"model-api/chainclient"
	"model-api/logging"

	"github.com/pkg/errors"
)

// Decision is the gate's verdict for one job tick. A skip is a clean outcome,
// not a failure: the job simply has nothing to do right now.
type Decision struct {
	Proceed bool
	Nonce   int64
	Reason  string
}

func skip(reason string) Decision {
	return Decision{Proceed: false, Reason: reason}
}

// Gate decides whether a submission attempt is currently worthwhile. It always
// queries fresh chain state: topic timing and open nonces move every block, so
// cached values would let jobs submit into closed windows.
type Gate struct {
	chain chainclient.ChainBridge
}

func NewGate(chain chainclient.ChainBridge) *Gate {
	return &Gate{chain: chain}
}

// Evaluate checks the topic's submission window and the open worker nonce.
// Transport failures are returned as errors so the caller can retry the job;
// missing or unfavorable chain state produces a skip decision.
func (g *Gate) Evaluate(ctx context.Context, topicId uint64) (Decision, error) {
	topic, err := g.chain.GetTopicDetails(ctx, topicId)
	if err != nil {
		return Decision{}, errors.Wrapf(err, "failed to query topic %d", topicId)
	}
	if topic == nil {
		return skip("topic does not exist"), nil
	}
	if !topic.IsActive {
		return skip("topic is not active"), nil
	}

	height, err := g.chain.GetCurrentBlockHeight(ctx)
	if err != nil {
		return Decision{}, errors.Wrap(err, "failed to query block height")
	}
	// EpochLastEnded == 0 is a topic still in its first epoch, not missing state.
	if height <= 0 || topic.EpochLastEnded < 0 || topic.WorkerSubmissionWindow <= 0 {
		return skip("insufficient chain state"), nil
	}

	windowClose := topic.EpochLastEnded + topic.WorkerSubmissionWindow
	if height <= topic.EpochLastEnded || height > windowClose {
		logging.Debug("Submission window closed", logging.Submission,
			"topicId", topicId, "height", height,
			"epochLastEnded", topic.EpochLastEnded, "windowClose", windowClose)
		return skip("outside submission window"), nil
	}

	nonce, found, err := g.chain.DeriveLatestOpenWorkerNonce(ctx, topicId)
	if err != nil {
		return Decision{}, errors.Wrapf(err, "failed to derive open nonce for topic %d", topicId)
	}
	if !found {
		return skip("no open worker nonce"), nil
	}

	return Decision{Proceed: true, Nonce: nonce}, nil
}
