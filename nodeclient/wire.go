package nodeclient

import (
	"encoding/json"
	"fmt"
)

const protocolVersion = "2.0"

// requestEnvelope is a request message sent to the node.
type requestEnvelope struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      string `json:"id"`
}

// responseEnvelope is a response message received from the node.
// Exactly one of Result and Error is expected to be set.
type responseEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RemoteError    `json:"error,omitempty"`
	ID      string          `json:"id"`
}

// RemoteError is the error object reported by the node.
type RemoteError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RemoteError) Error() string {
	return e.Message
}

func encodeRequest(id, method string, params any) ([]byte, error) {
	b, err := json.Marshal(requestEnvelope{
		JSONRPC: protocolVersion,
		Method:  method,
		Params:  params,
		ID:      id,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding %q request: %w", method, err)
	}
	return b, nil
}

// decodeResponse decodes a response envelope.
// The jsonrpc and id members are required and the id must be a string.
func decodeResponse(b []byte) (*responseEnvelope, error) {
	var raw struct {
		JSONRPC *string         `json:"jsonrpc"`
		Result  json.RawMessage `json:"result"`
		Error   *RemoteError    `json:"error"`
		ID      *string         `json:"id"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	if raw.JSONRPC == nil {
		return nil, fmt.Errorf("missing jsonrpc member")
	}
	if raw.ID == nil {
		return nil, fmt.Errorf("missing id member")
	}
	resp := &responseEnvelope{
		JSONRPC: *raw.JSONRPC,
		Error:   raw.Error,
		ID:      *raw.ID,
	}
	// "result":null is treated as absent
	if len(raw.Result) > 0 && string(raw.Result) != "null" {
		resp.Result = raw.Result
	}
	return resp, nil
}
