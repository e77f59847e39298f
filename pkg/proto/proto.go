package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	ErrMalformed   = errors.New("request body is not a JSON object")
	ErrEmptyMethod = errors.New("method is missing or empty")
)

var (
	null       = json.RawMessage("null")
	emptyArray = json.RawMessage("[]")
)

// Decode parses an inbound request body. Shape checks beyond "is an object" belong to Validate.
func Decode(body []byte) (*Request, error) {
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return nil, ErrMalformed
	}
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &req, nil
}

// PeekID pulls the id out of a body that may not decode as a Request, so error replies can
// still echo it.
func PeekID(body []byte) json.RawMessage {
	if !gjson.ValidBytes(body) {
		return null
	}
	id := gjson.GetBytes(body, "id")
	if !id.Exists() {
		return null
	}
	return json.RawMessage(id.Raw)
}

func (r *Request) Validate() error {
	if r == nil || r.Method == "" {
		return ErrEmptyMethod
	}
	return nil
}

// CallID returns the caller's correlation token, null when absent.
func (r *Request) CallID() json.RawMessage {
	if r == nil {
		return null
	}
	return IDOrNull(r.ID)
}

// WithMethod renders the outbound body for one method variant. Params and id are forwarded as-is.
func (r *Request) WithMethod(method string) ([]byte, error) {
	out := Request{
		JSONRPC: r.JSONRPC,
		Method:  method,
		Params:  r.Params,
		ID:      r.CallID(),
	}
	if out.JSONRPC == "" {
		out.JSONRPC = Version
	}
	if isAbsent(out.Params) {
		out.Params = emptyArray
	}
	return json.Marshal(&out)
}

func IDOrNull(id json.RawMessage) json.RawMessage {
	if isAbsent(id) {
		return null
	}
	return id
}

func isAbsent(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0
}

// ErrorResponse builds a complete error document that echoes id.
func ErrorResponse(id json.RawMessage, code int, message string, data any) []byte {
	resp := Response{
		JSONRPC: Version,
		Error:   &Error{Code: code, Message: message, Data: data},
		ID:      IDOrNull(id),
	}
	b, err := json.Marshal(&resp)
	if err != nil {
		resp.Error.Data = nil
		b, _ = json.Marshal(&resp)
	}
	return b
}

// IsStructurallyValid reports whether a backend body is a JSON-RPC answer: an object with a
// result member, or with a non-null error member. The content of either is not inspected.
func IsStructurallyValid(body []byte) bool {
	if !gjson.ValidBytes(body) {
		return false
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return false
	}
	if doc.Get("result").Exists() {
		return true
	}
	e := doc.Get("error")
	return e.Exists() && e.Type != gjson.Null
}

// StampID rewrites only the id member of a backend document.
func StampID(body []byte, id json.RawMessage) ([]byte, error) {
	return sjson.SetRawBytes(body, "id", IDOrNull(id))
}
