package mcpsession

import (
	"errors"

	"github.com/goccy/go-json"
)

// MessageType is an enumeration of the types of messages in the JSON-RPC protocol.
type MessageType string

const (
	MessageTypeRequest      MessageType = "request"
	MessageTypeNotification MessageType = "notification"
	MessageTypeResponse     MessageType = "response"
	MessageTypeInvalid      MessageType = "invalid"
)

// Direction tells whether a message left or entered the process.
type Direction string

const (
	Outbound Direction = "out"
	Inbound  Direction = "in"
)

// Message is a wrapper around the different types of JSON-RPC messages.
type Message struct {
	Type                MessageType
	Direction           Direction
	JsonRpcRequest      *Request
	JsonRpcNotification *Notification
	JsonRpcResponse     *Response
	Raw                 []byte
}

// Listener observes every frame sent or received by a session.
type Listener func(message *Message)

// Method returns the method of a request or notification.
func (m *Message) Method() string {
	switch m.Type {
	case MessageTypeRequest:
		return m.JsonRpcRequest.Method
	case MessageTypeNotification:
		return m.JsonRpcNotification.Method
	default:
		return ""
	}
}

// MarshalJSON is a custom JSON marshaler for the Message type.
func (m *Message) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case MessageTypeRequest:
		return json.Marshal(m.JsonRpcRequest)
	case MessageTypeNotification:
		return json.Marshal(m.JsonRpcNotification)
	case MessageTypeResponse:
		return json.Marshal(m.JsonRpcResponse)
	default:
		if len(m.Raw) > 0 {
			return m.Raw, nil
		}
		return nil, errors.New("unknown message type, couldn't marshal")
	}
}

// NewRequestMessage creates a new JSON-RPC message of type Request.
func NewRequestMessage(request *Request) *Message {
	return &Message{Type: MessageTypeRequest, Direction: Outbound, JsonRpcRequest: request}
}

// NewNotificationMessage creates a new JSON-RPC message of type Notification.
func NewNotificationMessage(notification *Notification) *Message {
	return &Message{Type: MessageTypeNotification, Direction: Outbound, JsonRpcNotification: notification}
}

// NewResponseMessage creates a new JSON-RPC message of type Response.
func NewResponseMessage(response *Response) *Message {
	return &Message{Type: MessageTypeResponse, Direction: Inbound, JsonRpcResponse: response}
}

// MessageTypeOf classifies a raw frame without fully decoding it.
func MessageTypeOf(data []byte) MessageType {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return MessageTypeInvalid
	}
	_, hasId := fields["id"]
	_, hasMethod := fields["method"]
	switch {
	case hasMethod && hasId:
		return MessageTypeRequest
	case hasMethod:
		return MessageTypeNotification
	case hasId:
		return MessageTypeResponse
	}
	return MessageTypeInvalid
}

// DecodeMessage decodes a raw inbound frame into a Message.
func DecodeMessage(data []byte) (*Message, error) {
	message := &Message{Type: MessageTypeOf(data), Direction: Inbound, Raw: data}
	switch message.Type {
	case MessageTypeRequest:
		message.JsonRpcRequest = &Request{}
		if err := json.Unmarshal(data, message.JsonRpcRequest); err != nil {
			return nil, err
		}
	case MessageTypeNotification:
		message.JsonRpcNotification = &Notification{}
		if err := json.Unmarshal(data, message.JsonRpcNotification); err != nil {
			return nil, err
		}
	case MessageTypeResponse:
		message.JsonRpcResponse = &Response{}
		if err := json.Unmarshal(data, message.JsonRpcResponse); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("not a JSON-RPC message")
	}
	return message, nil
}
