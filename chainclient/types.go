package chainclient

// TopicDetails mirrors the chain's view of a topic. EpochLastEnded and
// WorkerSubmissionWindow are block heights/lengths; together with the current
// height they define the open submission window
// [EpochLastEnded+1, EpochLastEnded+WorkerSubmissionWindow].
type TopicDetails struct {
	Id                     uint64 `json:"id"`
	IsActive               bool   `json:"is_active"`
	EpochLastEnded         int64  `json:"epoch_last_ended"`
	EpochLength            int64  `json:"epoch_length"`
	WorkerSubmissionWindow int64  `json:"worker_submission_window"`
	Creator                string `json:"creator,omitempty"`
	Metadata               string `json:"metadata,omitempty"`
}

type Forecast struct {
	Worker string `json:"worker"`
	Value  string `json:"value"`
}

// WorkerPayload is the normalized form of what a model's webhook returns.
// Optional binary fields are already base64-decoded by the time a payload
// reaches the chain client.
type WorkerPayload struct {
	InferenceValue    string     `json:"inference_value,omitempty"`
	Forecasts         []Forecast `json:"forecasts,omitempty"`
	ExtraData         []byte     `json:"extra_data,omitempty"`
	Proof             string     `json:"proof,omitempty"`
	ForecastExtraData []byte     `json:"forecast_extra_data,omitempty"`
}

// HasInference reports whether the payload carries anything submittable.
func (p *WorkerPayload) HasInference() bool {
	return p.InferenceValue != "" || len(p.Forecasts) > 0
}

type TxResult struct {
	TxHash string `json:"tx_hash"`
}

type WorkerPerformance struct {
	TopicId  uint64 `json:"topic_id"`
	Worker   string `json:"worker"`
	EmaScore string `json:"ema_score"`
}
