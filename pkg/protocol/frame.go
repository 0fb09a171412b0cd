package protocol

import "encoding/json"

// ProtocolVersion is the frame protocol version this client negotiates
// during connect. The gateway rejects a connect whose min/max range
// doesn't cover it.
const ProtocolVersion = 3

// Frame type discriminants, carried in every frame's "type" field.
const (
	FrameTypeRequest  = "request"
	FrameTypeResponse = "response"
	FrameTypeEvent    = "event"
)

// RequestFrame is a client-to-gateway RPC call.
type RequestFrame struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ResponseError is the structured error shape a gateway returns for a
// failed request, as opposed to a transport-level exception.
type ResponseError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ResponseFrame is the gateway's reply to a RequestFrame, correlated by ID.
type ResponseFrame struct {
	Type    string         `json:"type"`
	ID      string         `json:"id"`
	OK      bool           `json:"ok"`
	Payload interface{}    `json:"payload,omitempty"`
	Error   *ResponseError `json:"error,omitempty"`
}

// EventFrame is an unsolicited push from the gateway, not correlated to
// any request.
type EventFrame struct {
	Type    string      `json:"type"`
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

// frameTypePeek reads only the "type" discriminant, ignoring the rest of
// the frame's shape.
type frameTypePeek struct {
	Type string `json:"type"`
}

// ParseFrameType reports a raw frame's type discriminant without fully
// decoding it, so the reader can dispatch to the right struct.
func ParseFrameType(raw []byte) (string, error) {
	var peek frameTypePeek
	if err := json.Unmarshal(raw, &peek); err != nil {
		return "", err
	}
	return peek.Type, nil
}
