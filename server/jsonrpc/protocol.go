// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package jsonrpc

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/go-a2a/a2a-runtime"
)

// Version is the only JSON-RPC protocol version accepted.
const Version = "2.0"

// A2A RPC method names.
const (
	MethodMessageSend                = "message/send"
	MethodMessageStream              = "message/stream"
	MethodTasksGet                   = "tasks/get"
	MethodTasksList                  = "tasks/list"
	MethodTasksCancel                = "tasks/cancel"
	MethodTasksDelete                = "tasks/delete"
	MethodTasksResubscribe           = "tasks/resubscribe"
	MethodPushNotificationConfigSet  = "tasks/pushNotificationConfig/set"
	MethodPushNotificationConfigGet  = "tasks/pushNotificationConfig/get"
	MethodPushNotificationConfigList = "tasks/pushNotificationConfig/list"
	MethodPushNotificationConfigDel  = "tasks/pushNotificationConfig/delete"
)

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// A2A specific error codes.
const (
	CodeTaskNotFound         = -32001
	CodeTaskNotCancelable    = -32002
	CodeUnsupportedOperation = -32004
)

// nullID is the id of responses to requests whose id could not be read.
var nullID = jsontext.Value("null")

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      jsontext.Value `json:"id,omitzero"`
	Method  string         `json:"method"`
	Params  jsontext.Value `json:"params,omitzero"`
}

func (r *Request) validate() error {
	if r.JSONRPC != Version {
		return &Error{Code: CodeInvalidRequest, Message: fmt.Sprintf("unsupported jsonrpc version %q", r.JSONRPC)}
	}
	if r.Method == "" {
		return &Error{Code: CodeInvalidRequest, Message: "method is required"}
	}
	return nil
}

// Response is a JSON-RPC 2.0 response. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      jsontext.Value `json:"id"`
	Result  jsontext.Value `json:"result,omitzero"`
	Error   *Error         `json:"error,omitzero"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitzero"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Unwrap returns the a2a error matching the code, so callers can test
// responses with [errors.Is]. Not found codes unwrap to [a2a.ErrTaskNotFound];
// use [a2a.IsNotFound] for push notification configs.
func (e *Error) Unwrap() error {
	switch e.Code {
	case CodeTaskNotFound:
		return a2a.ErrTaskNotFound
	case CodeTaskNotCancelable:
		return a2a.ErrTaskNotCancelable
	case CodeUnsupportedOperation:
		return a2a.ErrUnsupportedOperation
	case CodeInvalidParams:
		return a2a.ErrInvalidParams
	default:
		return nil
	}
}

// codeOf maps the a2a error taxonomy to JSON-RPC error codes.
func codeOf(err error) int64 {
	switch {
	case a2a.IsNotFound(err):
		return CodeTaskNotFound
	case errors.Is(err, a2a.ErrTaskNotCancelable), errors.Is(err, a2a.ErrTaskNotModifiable):
		return CodeTaskNotCancelable
	case errors.Is(err, a2a.ErrUnsupportedOperation):
		return CodeUnsupportedOperation
	case errors.Is(err, a2a.ErrInvalidParams),
		errors.Is(err, a2a.ErrInvalidPageToken),
		errors.Is(err, a2a.ErrTaskIDMismatch),
		errors.Is(err, a2a.ErrInvalidTransition):
		return CodeInvalidParams
	default:
		return CodeInternalError
	}
}

// toError converts err into the error object sent to the client. Internal
// errors are reported without their detail.
func toError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	code := codeOf(err)
	if code == CodeInternalError {
		return &Error{Code: code, Message: "internal error"}
	}
	return &Error{Code: code, Message: err.Error()}
}

func decodeParams[P any](raw jsontext.Value) (*P, error) {
	p := new(P)
	if len(raw) == 0 || bytes.Equal(raw, nullID) {
		return p, nil
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid params", Data: err.Error()}
	}
	return p, nil
}

// encodeResult marshals a method result. Events carry their "kind"
// discriminator so clients can tell the variants apart.
func encodeResult(v any) (jsontext.Value, error) {
	if v == nil {
		return nullID, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if ev, ok := v.(a2a.Event); ok {
		data = withKind(data, ev.Kind())
	}
	return data, nil
}

// withKind prepends a "kind" member to the encoded object obj.
func withKind(obj []byte, kind a2a.EventKind) []byte {
	if len(obj) < 2 || obj[0] != '{' {
		return obj
	}
	out := make([]byte, 0, len(obj)+len(kind)+10)
	out = append(out, `{"kind":"`...)
	out = append(out, kind...)
	out = append(out, '"')
	if rest := bytes.TrimSpace(obj[1:]); len(rest) > 0 && rest[0] != '}' {
		out = append(out, ',')
	}
	return append(out, obj[1:]...)
}

// DecodeEvent decodes an event result by its "kind" member.
func DecodeEvent(data jsontext.Value) (a2a.Event, error) {
	var head struct {
		Kind a2a.EventKind `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	var ev a2a.Event
	switch head.Kind {
	case a2a.EventKindTask:
		ev = new(a2a.Task)
	case a2a.EventKindMessage:
		ev = new(a2a.Message)
	case a2a.EventKindStatusUpdate:
		ev = new(a2a.TaskStatusUpdateEvent)
	case a2a.EventKindArtifactUpdate:
		ev = new(a2a.TaskArtifactUpdateEvent)
	default:
		return nil, fmt.Errorf("unknown event kind %q", head.Kind)
	}
	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", head.Kind, err)
	}
	return ev, nil
}

func newResponse(id jsontext.Value, result any, err error) *Response {
	if len(id) == 0 {
		id = nullID
	}
	resp := &Response{JSONRPC: Version, ID: id}
	if err == nil {
		resp.Result, err = encodeResult(result)
	}
	if err != nil {
		resp.Result = nil
		resp.Error = toError(err)
	}
	return resp
}
