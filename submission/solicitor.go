package submission

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"model-api/chainclient"
	"model-api/utils"

	"github.com/pkg/errors"
)

var (
	ErrWebhookUnreachable  = errors.New("webhook unreachable")
	ErrWebhookStatus       = errors.New("webhook returned non-200 status")
	ErrIncompletePayload   = errors.New("webhook payload is incomplete")
	ErrInvalidPayloadField = errors.New("webhook payload field is invalid")
)

// WebhookRequest is what the solicitor POSTs to a model's webhook. The active
// worker lists let forecasting models score their peers.
type WebhookRequest struct {
	TopicId             uint64   `json:"topic_id"`
	Nonce               int64    `json:"nonce"`
	InfererAddresses    []string `json:"inferer_addresses,omitempty"`
	ForecasterAddresses []string `json:"forecaster_addresses,omitempty"`
}

// webhookResponse is the raw wire form. Binary fields arrive base64-encoded
// and are decoded during validation.
type webhookResponse struct {
	InferenceValue    string                 `json:"inference_value,omitempty"`
	Forecasts         []chainclient.Forecast `json:"forecasts,omitempty"`
	ExtraData         string                 `json:"extra_data,omitempty"`
	Proof             string                 `json:"proof,omitempty"`
	ForecastExtraData string                 `json:"forecast_extra_data,omitempty"`
}

// Solicitor calls a model's webhook for fresh output and validates the
// response into a submittable payload.
type Solicitor struct {
	client *http.Client
}

func NewSolicitor(timeout time.Duration) *Solicitor {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Solicitor{client: utils.NewHttpClient(timeout)}
}

// Solicit posts the request to webhookUrl and returns the validated payload.
func (s *Solicitor) Solicit(ctx context.Context, webhookUrl string, req WebhookRequest) (*chainclient.WorkerPayload, error) {
	resp, err := utils.SendPostJsonRequest(ctx, s.client, webhookUrl, req)
	if err != nil {
		return nil, errors.Wrapf(ErrWebhookUnreachable, "%s: %v", webhookUrl, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Wrapf(ErrWebhookStatus, "%s returned %d: %s", webhookUrl, resp.StatusCode, string(body))
	}

	var wire webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		if typeErr := new(json.UnmarshalTypeError); errors.As(err, &typeErr) {
			return nil, errors.Wrapf(ErrInvalidPayloadField, "field %q has wrong type %s", typeErr.Field, typeErr.Value)
		}
		return nil, errors.Wrapf(ErrInvalidPayloadField, "malformed response body: %v", err)
	}

	return validatePayload(&wire)
}

// validatePayload accepts any response carrying at least one submittable
// field. A model registered for both roles may answer with either one.
func validatePayload(wire *webhookResponse) (*chainclient.WorkerPayload, error) {
	if wire.InferenceValue == "" && len(wire.Forecasts) == 0 {
		return nil, errors.Wrap(ErrIncompletePayload, "neither inference_value nor forecasts present")
	}
	for i, f := range wire.Forecasts {
		if f.Worker == "" || f.Value == "" {
			return nil, errors.Wrapf(ErrInvalidPayloadField, "forecasts[%d] must carry worker and value", i)
		}
	}

	payload := &chainclient.WorkerPayload{
		InferenceValue: wire.InferenceValue,
		Forecasts:      wire.Forecasts,
		Proof:          wire.Proof,
	}
	var err error
	if payload.ExtraData, err = decodeBinaryField("extra_data", wire.ExtraData); err != nil {
		return nil, err
	}
	if payload.ForecastExtraData, err = decodeBinaryField("forecast_extra_data", wire.ForecastExtraData); err != nil {
		return nil, err
	}
	return payload, nil
}

func decodeBinaryField(name, value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidPayloadField, fmt.Sprintf("%s is not valid base64", name))
	}
	return decoded, nil
}
