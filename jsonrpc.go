package mcpsession

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// RequestId is the id of a JSON-RPC request. It is either a string or an integer;
// the zero value represents a null id, which servers use for errors they could not correlate.
type RequestId struct {
	str   string
	num   int64
	isNum bool
	isSet bool
}

// StringId returns a string request id.
func StringId(id string) RequestId {
	return RequestId{str: id, isSet: true}
}

// IntId returns an integer request id.
func IntId(id int64) RequestId {
	return RequestId{num: id, isNum: true, isSet: true}
}

// IsNull returns true when the id is absent or JSON null.
func (r RequestId) IsNull() bool {
	return !r.isSet
}

// Equal compares kind and value.
func (r RequestId) Equal(other RequestId) bool {
	if r.isSet != other.isSet || r.isNum != other.isNum {
		return false
	}
	if r.isNum {
		return r.num == other.num
	}
	return r.str == other.str
}

// Key returns a value usable as a map key; ids of different kinds never collide.
func (r RequestId) Key() string {
	switch {
	case !r.isSet:
		return "null"
	case r.isNum:
		return "n:" + strconv.FormatInt(r.num, 10)
	default:
		return "s:" + r.str
	}
}

// String returns a human readable id.
func (r RequestId) String() string {
	switch {
	case !r.isSet:
		return "null"
	case r.isNum:
		return strconv.FormatInt(r.num, 10)
	default:
		return r.str
	}
}

// MarshalJSON encodes the id as a bare JSON scalar.
func (r RequestId) MarshalJSON() ([]byte, error) {
	switch {
	case !r.isSet:
		return []byte("null"), nil
	case r.isNum:
		return []byte(strconv.FormatInt(r.num, 10)), nil
	default:
		return json.Marshal(r.str)
	}
}

// UnmarshalJSON decodes a string, integer or null id.
func (r *RequestId) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*r = RequestId{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = StringId(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid request id %s: %w", data, err)
	}
	i, err := n.Int64()
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil || f != float64(int64(f)) {
			return fmt.Errorf("invalid request id %s: not an integer", data)
		}
		i = int64(f)
	}
	*r = IntId(i)
	return nil
}

// Error is used to provide additional information about the error that occurred.
type Error struct {
	// The error type that occurred.
	Code int `json:"code" yaml:"code" mapstructure:"code"`

	// Additional information about the error. The value of this member is defined by
	// the sender (e.g. detailed error information, nested errors etc.).
	Data json.RawMessage `json:"data,omitempty" yaml:"data,omitempty" mapstructure:"data,omitempty"`

	// A short description of the error. The message SHOULD be limited to a concise
	// single sentence.
	Message string `json:"message" yaml:"message" mapstructure:"message"`
}

// Request represents a JSON-RPC request message.
type Request struct {
	// Id corresponds to the JSON schema field "id".
	Id RequestId `json:"id" yaml:"id" mapstructure:"id"`

	// Jsonrpc corresponds to the JSON schema field "jsonrpc".
	Jsonrpc string `json:"jsonrpc" yaml:"jsonrpc" mapstructure:"jsonrpc"`

	// Method corresponds to the JSON schema field "method".
	Method string `json:"method" yaml:"method" mapstructure:"method"`

	// Params corresponds to the JSON schema field "params".
	// It is stored as a []byte to enable efficient marshaling and unmarshaling into custom types later on in the protocol
	Params json.RawMessage `json:"params,omitempty" yaml:"params,omitempty" mapstructure:"params,omitempty"`
}

// UnmarshalJSON is a custom JSON unmarshaler for the Request type.
func (m *Request) UnmarshalJSON(data []byte) error {
	required := struct {
		Id      *RequestId       `json:"id"`
		Jsonrpc *string          `json:"jsonrpc"`
		Method  *string          `json:"method"`
		Params  *json.RawMessage `json:"params"`
	}{}
	if err := json.Unmarshal(data, &required); err != nil {
		return err
	}
	if required.Id == nil {
		return errors.New("field id in Request: required")
	}
	if required.Jsonrpc == nil {
		return errors.New("field jsonrpc in Request: required")
	}
	if required.Method == nil {
		return errors.New("field method in Request: required")
	}
	m.Id = *required.Id
	m.Jsonrpc = *required.Jsonrpc
	m.Method = *required.Method
	m.Params = nil
	if required.Params != nil {
		m.Params = *required.Params
	}
	return nil
}

// Notification is a type representing a JSON-RPC notification message.
type Notification struct {
	// Jsonrpc corresponds to the JSON schema field "jsonrpc".
	Jsonrpc string `json:"jsonrpc" yaml:"jsonrpc" mapstructure:"jsonrpc"`

	// Method corresponds to the JSON schema field "method".
	Method string `json:"method" yaml:"method" mapstructure:"method"`

	// Params corresponds to the JSON schema field "params".
	Params json.RawMessage `json:"params,omitempty" yaml:"params,omitempty" mapstructure:"params,omitempty"`
}

// UnmarshalJSON is a custom JSON unmarshaler for the Notification type.
func (m *Notification) UnmarshalJSON(data []byte) error {
	required := struct {
		Jsonrpc *string          `json:"jsonrpc"`
		Method  *string          `json:"method"`
		Id      *json.RawMessage `json:"id"`
		Params  *json.RawMessage `json:"params"`
	}{}
	if err := json.Unmarshal(data, &required); err != nil {
		return err
	}
	if required.Jsonrpc == nil {
		return errors.New("field jsonrpc in Notification: required")
	}
	if required.Method == nil {
		return errors.New("field method in Notification: required")
	}
	if required.Id != nil {
		return errors.New("field id in Notification: not allowed")
	}
	m.Jsonrpc = *required.Jsonrpc
	m.Method = *required.Method
	m.Params = nil
	if required.Params != nil {
		m.Params = *required.Params
	}
	return nil
}

// Response represents a JSON-RPC response message; Result and Error are mutually exclusive.
type Response struct {
	// Id corresponds to the JSON schema field "id".
	Id RequestId `json:"id" yaml:"id" mapstructure:"id"`

	// Jsonrpc corresponds to the JSON schema field "jsonrpc".
	Jsonrpc string `json:"jsonrpc" yaml:"jsonrpc" mapstructure:"jsonrpc"`

	// Error is set when the server failed to process the request.
	Error *Error `json:"error,omitempty" yaml:"error,omitempty" mapstructure:"error"`

	// Result corresponds to the JSON schema field "result".
	Result json.RawMessage `json:"result,omitempty" yaml:"result" mapstructure:"result"`
}

// UnmarshalJSON is a custom JSON unmarshaler for the Response type.
// A null id is accepted; it is what servers send for errors they could not correlate.
func (m *Response) UnmarshalJSON(data []byte) error {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	rawId, ok := fields["id"]
	if !ok {
		return errors.New("field id in Response: required")
	}
	rawVersion, ok := fields["jsonrpc"]
	if !ok {
		return errors.New("field jsonrpc in Response: required")
	}
	rawResult, hasResult := fields["result"]
	rawError, hasError := fields["error"]
	if hasError && string(bytes.TrimSpace(rawError)) == "null" {
		hasError = false
	}
	if hasResult && hasError && string(bytes.TrimSpace(rawResult)) == "null" {
		hasResult = false
	}
	if !hasResult && !hasError {
		return errors.New("field result in Response: required")
	}
	if hasResult && hasError {
		return errors.New("fields result and error in Response: mutually exclusive")
	}
	var id RequestId
	if err := id.UnmarshalJSON(rawId); err != nil {
		return err
	}
	var version string
	if err := json.Unmarshal(rawVersion, &version); err != nil {
		return fmt.Errorf("field jsonrpc in Response: %w", err)
	}
	m.Id = id
	m.Jsonrpc = version
	m.Result = nil
	m.Error = nil
	if hasResult {
		m.Result = rawResult
	}
	if hasError {
		rpcErr := &Error{}
		if err := json.Unmarshal(rawError, rpcErr); err != nil {
			return fmt.Errorf("field error in Response: %w", err)
		}
		m.Error = rpcErr
	}
	return nil
}

// NewRequest creates a request with the given id, method and parameters.
func NewRequest(id RequestId, method string, parameters interface{}) (*Request, error) {
	params, err := asParameters(method, parameters)
	if err != nil {
		return nil, err
	}
	return &Request{Id: id, Jsonrpc: Version, Method: method, Params: params}, nil
}

// NewNotification creates a notification with the given method and parameters.
func NewNotification(method string, parameters interface{}) (*Notification, error) {
	params, err := asParameters(method, parameters)
	if err != nil {
		return nil, err
	}
	return &Notification{Jsonrpc: Version, Method: method, Params: params}, nil
}

// NewResponse creates a successful response with the specified id and result data.
func NewResponse(id RequestId, data []byte) *Response {
	return &Response{Id: id, Jsonrpc: Version, Result: data}
}

// NewErrorResponse creates an error response with the specified id.
func NewErrorResponse(id RequestId, rpcErr *Error) *Response {
	return &Response{Id: id, Jsonrpc: Version, Error: rpcErr}
}

func asParameters(method string, parameters interface{}) (json.RawMessage, error) {
	switch actual := parameters.(type) {
	case nil:
		return nil, nil
	case []byte:
		return actual, nil
	case json.RawMessage:
		return actual, nil
	case Value:
		if actual.IsNull() {
			return nil, nil
		}
		return actual.MarshalJSON()
	case *Value:
		if actual == nil || actual.IsNull() {
			return nil, nil
		}
		return actual.MarshalJSON()
	default:
		data, err := json.Marshal(actual)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal jsonrpc request parameter: [method:%v, parameters: %+v] %w", method, parameters, err)
		}
		return data, nil
	}
}
