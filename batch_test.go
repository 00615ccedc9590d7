package mcpsession

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatch_UnmarshalJSON(t *testing.T) {
	testCases := []struct {
		name      string
		input     string
		wantTypes []MessageType
		wantError bool
	}{
		{
			name:      "mixed frames",
			input:     `[{"jsonrpc":"2.0","method":"notifications/message","params":{}},{"jsonrpc":"2.0","id":"init-1","result":{}}]`,
			wantTypes: []MessageType{MessageTypeNotification, MessageTypeResponse},
		},
		{
			name:      "single response",
			input:     ` [{"jsonrpc":"2.0","id":1,"result":{}}]`,
			wantTypes: []MessageType{MessageTypeResponse},
		},
		{name: "empty array", input: `[]`, wantError: true},
		{name: "object", input: `{"jsonrpc":"2.0","id":1,"result":{}}`, wantError: true},
		{name: "broken", input: `[{"jsonrpc":`, wantError: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var batch Batch
			err := json.Unmarshal([]byte(tc.input), &batch)
			if tc.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			messages, err := batch.Messages()
			require.NoError(t, err)
			var types []MessageType
			for _, message := range messages {
				types = append(types, message.Type)
			}
			assert.Equal(t, tc.wantTypes, types)
		})
	}
}

func TestBatch_InvalidFrame(t *testing.T) {
	var batch Batch
	require.NoError(t, json.Unmarshal([]byte(`[{"id":1}]`), &batch))
	_, err := batch.Messages()
	assert.Error(t, err)
}
