package mcpgate

import "encoding/json"

// JsonRpcID is a JSON-RPC 2.0 request identifier. The gate only ever issues
// numeric ids; string ids are accepted on the decode path since some MCP
// servers echo ids back as strings.
type JsonRpcID struct {
	Number int64
	String string
	IsStr  bool
}

func NumberID(n int64) JsonRpcID { return JsonRpcID{Number: n} }

func (id JsonRpcID) MarshalJSON() ([]byte, error) {
	if id.IsStr {
		return json.Marshal(id.String)
	}
	return json.Marshal(id.Number)
}

func (id *JsonRpcID) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*id = JsonRpcID{Number: n}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*id = JsonRpcID{String: s, IsStr: true}
	return nil
}

// JsonRpcRequest is an outbound (tools/call, tools/list, resources/list, ...)
// request envelope.
type JsonRpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      JsonRpcID      `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

func NewJsonRpcRequest(id JsonRpcID, method string, params map[string]any) JsonRpcRequest {
	return JsonRpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
}

// JsonRpcError is the error member of a JsonRpcResponse.
type JsonRpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// JsonRpcResponse is the response to a JsonRpcRequest, carrying exactly one
// of Result or Error per the JSON-RPC 2.0 spec.
type JsonRpcResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      JsonRpcID     `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *JsonRpcError `json:"error,omitempty"`
}

func (r *JsonRpcResponse) IntoResult() (any, error) {
	if r.Error != nil {
		return nil, &McpProtocolError{Code: r.Error.Code, Message: r.Error.Message}
	}
	return r.Result, nil
}

// JsonRpcNotification is a one-way message with no id, used both for
// server-to-client pushes (logging/message, sampling/createMessage) and for
// client-to-server cancellation.
type JsonRpcNotification struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

func NewJsonRpcNotification(method string, params map[string]any) JsonRpcNotification {
	return JsonRpcNotification{JSONRPC: "2.0", Method: method, Params: params}
}

func CancelledNotification(id JsonRpcID) JsonRpcNotification {
	params := map[string]any{"requestId": id.Number}
	if id.IsStr {
		params["requestId"] = id.String
	}
	return NewJsonRpcNotification("notifications/cancelled", params)
}

// McpProtocolError wraps a JSON-RPC error member surfaced from a peer.
type McpProtocolError struct {
	Code    int
	Message string
}

func (e *McpProtocolError) Error() string {
	return "mcp protocol error " + jsonrpcItoa(e.Code) + ": " + e.Message
}

func jsonrpcItoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}
