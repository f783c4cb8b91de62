// Package jsonrpc implements the JSON-RPC 2.0 envelope: requests,
// responses, notifications, and batching, with exact preservation of the
// `id` field's JSON type.
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"

	domainerrors "github.com/mcprt/server/internal/errors"
)

const domainName = "jsonrpc"
const Version = "2.0"

// Standard JSON-RPC error codes plus this protocol's application codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeUnauthorized   = -32001
	CodeNotInitialized = -32002
)

// ID preserves the exact JSON representation of a request id: a number
// round-trips without widening to float64, a string stays a string, and a
// present-but-null id is distinguished from an absent one.
type ID struct {
	raw json.RawMessage
}

// NewIntID builds an ID from an integer.
func NewIntID(n int64) ID {
	return ID{raw: json.RawMessage(fmt.Sprintf("%d", n))}
}

// NewStringID builds an ID from a string, JSON-encoding it.
func NewStringID(s string) ID {
	b, _ := json.Marshal(s)
	return ID{raw: b}
}

// NullID is the explicit JSON null id used on parse-level error responses.
func NullID() ID { return ID{raw: json.RawMessage("null")} }

// IsZero reports whether this ID was never set (as opposed to explicitly
// null).
func (id ID) IsZero() bool { return id.raw == nil }

// IsNull reports whether the id is the JSON literal null.
func (id ID) IsNull() bool { return bytes.Equal(bytes.TrimSpace(id.raw), []byte("null")) }

func (id ID) MarshalJSON() ([]byte, error) {
	if id.raw == nil {
		return []byte("null"), nil
	}
	return id.raw, nil
}

func (id *ID) UnmarshalJSON(data []byte) error {
	cp := make(json.RawMessage, len(data))
	copy(cp, data)
	id.raw = cp
	return nil
}

// Equal compares two IDs by their raw JSON text, preserving exact-type
// comparison instead of widening through a decoded interface{}.
func (id ID) Equal(other ID) bool {
	return bytes.Equal(bytes.TrimSpace(id.raw), bytes.TrimSpace(other.raw))
}

func (id ID) String() string {
	return string(id.raw)
}

// Request is a JSON-RPC request or notification. A notification is a
// Request whose ID field was absent on the wire (HasID false).
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      ID              `json:"id,omitempty"`
	HasID   bool            `json:"-"`
}

// IsNotification reports whether this message carries no id and therefore
// expects no response.
func (r Request) IsNotification() bool { return !r.HasID }

// rawRequest mirrors Request's wire shape so UnmarshalJSON can detect
// whether "id" was present at all (encoding/json gives no direct way to
// tell "absent" from "present and null" without a pointer sentinel).
type rawRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

func (r *Request) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var rr rawRequest
	if err := json.Unmarshal(data, &rr); err != nil {
		return err
	}
	r.JSONRPC = rr.JSONRPC
	r.Method = rr.Method
	r.Params = rr.Params
	if idRaw, ok := raw["id"]; ok {
		r.HasID = true
		r.ID = ID{raw: idRaw}
	}
	return nil
}

func (r Request) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"jsonrpc": Version,
		"method":  r.Method,
	}
	if r.Params != nil {
		m["params"] = r.Params
	}
	if r.HasID {
		m["id"] = r.ID
	}
	return json.Marshal(m)
}

// ErrorObject is the JSON-RPC error member.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *ErrorObject) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewError builds an ErrorObject.
func NewError(code int, message string, data any) *ErrorObject {
	return &ErrorObject{Code: code, Message: message, Data: data}
}

// Response is a JSON-RPC response: exactly one of Result/Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
	ID      ID              `json:"id"`
}

// NewResultResponse builds a success response, marshalling result.
func NewResultResponse(id ID, result any) (Response, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return Response{}, domainerrors.New(domainName, "NewResultResponse", domainerrors.ErrInternal, err)
	}
	return Response{JSONRPC: Version, Result: data, ID: id}, nil
}

// NewErrorResponse builds an error response.
func NewErrorResponse(id ID, errObj *ErrorObject) Response {
	return Response{JSONRPC: Version, Error: errObj, ID: id}
}

// Batch is a slice of decoded requests, recording whether the wire payload
// was a JSON array (batch) or a bare single object.
type Batch struct {
	Requests []Request
	IsBatch  bool
}

// Decode parses either a single JSON-RPC message or a batch array.
// An empty batch array is itself an invalid request.
func Decode(data []byte) (Batch, *ErrorObject) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Batch{}, NewError(CodeParseError, "Parse error", "empty payload")
	}

	if trimmed[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return Batch{}, NewError(CodeParseError, "Parse error", err.Error())
		}
		if len(raws) == 0 {
			return Batch{}, NewError(CodeInvalidRequest, "Invalid Request", "empty batch")
		}
		reqs := make([]Request, 0, len(raws))
		for _, raw := range raws {
			var r Request
			if err := json.Unmarshal(raw, &r); err != nil {
				return Batch{}, NewError(CodeInvalidRequest, "Invalid Request", err.Error())
			}
			if r.JSONRPC != Version || r.Method == "" {
				return Batch{}, NewError(CodeInvalidRequest, "Invalid Request", "missing jsonrpc version or method")
			}
			reqs = append(reqs, r)
		}
		return Batch{Requests: reqs, IsBatch: true}, nil
	}

	var r Request
	if err := json.Unmarshal(trimmed, &r); err != nil {
		return Batch{}, NewError(CodeParseError, "Parse error", err.Error())
	}
	if r.JSONRPC != Version || r.Method == "" {
		return Batch{}, NewError(CodeInvalidRequest, "Invalid Request", "missing jsonrpc version or method")
	}
	return Batch{Requests: []Request{r}, IsBatch: false}, nil
}

// EncodeResponses renders a slice of responses back onto the wire: a bare
// object if the original request was not a batch and exactly one response
// exists, otherwise a JSON array. Notifications produce no Response and are
// simply absent from responses.
func EncodeResponses(responses []Response, wasBatch bool) ([]byte, error) {
	if !wasBatch {
		if len(responses) == 0 {
			return nil, nil
		}
		return json.Marshal(responses[0])
	}
	if len(responses) == 0 {
		return nil, nil
	}
	return json.Marshal(responses)
}
