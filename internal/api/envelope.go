package api

import (
	"strconv"

	"github.com/danielgtaylor/huma/v2"
)

// EnvelopeVersion is the wire version of the response envelope.
const EnvelopeVersion = 1

// Envelope wraps every view API response body.
type Envelope struct {
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// EnvelopeTransformer is a huma transformer that wraps response bodies in an
// Envelope. Errors carry their message in Error and their code in Code.
func EnvelopeTransformer(_ huma.Context, status string, v any) (any, error) {
	if _, ok := v.(Envelope); ok {
		return v, nil
	}

	if apiErr, ok := v.(*APIError); ok {
		return Envelope{
			Version: EnvelopeVersion,
			Error:   apiErr.Message,
			Code:    apiErr.Code,
			Details: apiErr.Details,
		}, nil
	}

	if code, err := strconv.Atoi(status); err == nil && code >= 400 {
		return Envelope{Version: EnvelopeVersion, Data: v}, nil
	}

	return Envelope{Version: EnvelopeVersion, Success: true, Data: v}, nil
}
