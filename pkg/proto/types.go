package proto

import "encoding/json"

// Version is the only protocol tag the relay speaks.
const Version = "2.0"

const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeInternalError  = -32603
	CodeRateLimited    = -32000
)

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// ExhaustedData is the error.data payload of a relay exhaustion response.
type ExhaustedData struct {
	Endpoints []string `json:"endpoints"`
	Methods   []string `json:"methods"`
	Attempts  int      `json:"attempts"`
	Details   []string `json:"details"`
}
