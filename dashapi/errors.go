package dashapi

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Kind is the category of a failed backend call
type Kind int

const (
	KindHTTPOther Kind = iota
	KindNetwork
	KindHTTPClient
	KindHTTPServer
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindHTTPClient:
		return "http_client"
	case KindHTTPServer:
		return "http_server"
	default:
		return "http_other"
	}
}

// User-facing messages
const (
	MsgUnreachable      = "Unable to connect to the server. Please ensure the backend is running."
	MsgNotFound         = "Resource not found"
	MsgServerError      = "Server error. Please try again later."
	MsgRetriesExhausted = "Network error - please check if the server is running"
	MsgInvalidResponse  = "Invalid response from server"
	MsgTimedOut         = "The request timed out. It may still be running on the server."
)

// ClassifiedError is a failed call normalized into a Kind, a message that can
// be shown to a user, and the HTTP status when there was one.
type ClassifiedError struct {
	Kind       Kind
	Message    string
	StatusCode int    // 0 when no response was received
	Code       string // "code" from the error body, if any
	Err        error
}

func (e *ClassifiedError) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (%d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Recoverable reports whether retrying might succeed
func (e *ClassifiedError) Recoverable() bool {
	return e.Kind == KindNetwork || e.Kind == KindHTTPServer
}

// errorBody is what the backend sends alongside a non-2xx status
type errorBody struct {
	Message string          `json:"message"`
	Code    json.RawMessage `json:"code"`
}

// Classify turns a transport failure or a non-2xx response into a ClassifiedError.
// transportErr takes precedence; body may be nil.
func Classify(resp *http.Response, body []byte, transportErr error) *ClassifiedError {
	if transportErr != nil || resp == nil {
		return &ClassifiedError{Kind: KindNetwork, Message: MsgUnreachable, Err: transportErr}
	}

	status := resp.StatusCode
	var eb errorBody
	if len(body) > 0 {
		_ = json.Unmarshal(body, &eb)
	}

	switch {
	case status >= 400 && status < 500:
		msg := eb.Message
		if msg == "" {
			if status == http.StatusNotFound {
				msg = MsgNotFound
			} else {
				msg = statusText(resp)
			}
		}
		return &ClassifiedError{Kind: KindHTTPClient, Message: msg, StatusCode: status, Code: codeString(eb.Code)}
	case status >= 500 && status < 600:
		ce := &ClassifiedError{Kind: KindHTTPServer, Message: MsgServerError, StatusCode: status, Code: codeString(eb.Code)}
		if eb.Message != "" {
			ce.Err = fmt.Errorf("backend: %s", eb.Message)
		}
		return ce
	default:
		return &ClassifiedError{Kind: KindHTTPOther, Message: statusText(resp), StatusCode: status}
	}
}

// exhausted reports a recoverable failure that outlived every retry. It is
// always surfaced as a connectivity problem; the last attempt's error is kept
// as the cause.
func exhausted(last *ClassifiedError) *ClassifiedError {
	return &ClassifiedError{Kind: KindNetwork, Message: MsgRetriesExhausted, Err: last}
}

func statusText(resp *http.Response) string {
	if t := http.StatusText(resp.StatusCode); t != "" {
		return t
	}
	return resp.Status
}

// codeString accepts the body "code" as either a JSON string or a number
func codeString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
