package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{
			name: "request with int id",
			msg:  &Request{ID: NewIntID(1), Method: "add", Params: json.RawMessage(`{"a":2,"b":3}`)},
		},
		{
			name: "request with string id and no params",
			msg:  &Request{ID: NewStringID("req-7"), Method: "ping"},
		},
		{
			name: "success response",
			msg:  &Response{ID: NewIntID(1), Result: json.RawMessage(`{"sum":5}`)},
		},
		{
			name: "null result",
			msg:  &Response{ID: NewStringID("x"), Result: json.RawMessage(`null`)},
		},
		{
			name: "error response with data",
			msg: &Response{ID: NewIntID(9), Error: &Error{
				Code:    MethodNotFound,
				Message: "method not found",
				Data:    json.RawMessage(`{"method":"foo"}`),
			}},
		},
		{
			name: "error response with null id",
			msg:  &Response{Error: &Error{Code: ParseError, Message: "parse error"}},
		},
		{
			name: "notification",
			msg:  &Notification{Method: "progress", Params: json.RawMessage(`[1,"two",{"three":3.5}]`)},
		},
		{
			name: "params containing newlines and html",
			msg:  &Notification{Method: "log", Params: json.RawMessage(`{"text":"line one\nline two <b>&</b>"}`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.msg)
			require.NoError(t, err)
			assert.NotContains(t, string(data), "\n")
			assert.Contains(t, string(data), `"jsonrpc":"2.0"`)

			decoded, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, tt.msg, decoded)
		})
	}
}

func TestEncodeCompactsIndentedParams(t *testing.T) {
	msg := &Request{ID: NewIntID(3), Method: "echo", Params: json.RawMessage("{\n  \"text\": \"hi\"\n}")}

	data, err := Encode(msg)
	require.NoError(t, err)
	assert.False(t, bytes.ContainsRune(data, '\n'))
	assert.Equal(t, `{"jsonrpc":"2.0","id":3,"method":"echo","params":{"text":"hi"}}`, string(data))
}

func TestEncodeRejectsInvalidMessages(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"nil", nil},
		{"request without method", &Request{ID: NewIntID(1)}},
		{"request with null id", &Request{Method: "x"}},
		{"response with both", &Response{ID: NewIntID(1), Result: json.RawMessage(`1`), Error: &Error{Code: InternalError}}},
		{"response with neither", &Response{ID: NewIntID(1)}},
		{"notification without method", &Notification{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.msg)
			assert.Error(t, err)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		kind     DecodeErrorKind
		hasID    bool
		wantCode ErrorCode
	}{
		{"empty", "", KindParse, false, ParseError},
		{"not json", "hello", KindParse, false, ParseError},
		{"truncated", `{"jsonrpc":"2.0","id":1,`, KindParse, false, ParseError},
		{"batch", `[{"jsonrpc":"2.0","method":"a"}]`, KindInvalid, false, InvalidRequest},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"a"}`, KindInvalid, true, InvalidRequest},
		{"missing version", `{"id":1,"method":"a"}`, KindInvalid, true, InvalidRequest},
		{"both result and error", `{"jsonrpc":"2.0","id":1,"result":1,"error":{"code":1,"message":"x"}}`, KindInvalid, true, InvalidRequest},
		{"neither result nor error", `{"jsonrpc":"2.0","id":1}`, KindInvalid, true, InvalidRequest},
		{"no method no id", `{"jsonrpc":"2.0","params":{}}`, KindInvalid, false, InvalidRequest},
		{"null request id", `{"jsonrpc":"2.0","id":null,"method":"a"}`, KindInvalid, false, InvalidRequest},
		{"fractional id", `{"jsonrpc":"2.0","id":1.5,"method":"a"}`, KindInvalid, false, InvalidRequest},
		{"object id", `{"jsonrpc":"2.0","id":{},"method":"a"}`, KindInvalid, false, InvalidRequest},
		{"empty method", `{"jsonrpc":"2.0","id":4,"method":""}`, KindInvalid, true, InvalidRequest},
		{"method with result", `{"jsonrpc":"2.0","id":4,"method":"a","result":1}`, KindInvalid, true, InvalidRequest},
		{"bad error object", `{"jsonrpc":"2.0","id":4,"error":"boom"}`, KindInvalid, true, InvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.input))
			require.Error(t, err)
			assert.Nil(t, msg)

			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr))
			assert.Equal(t, tt.kind, decodeErr.Kind)
			assert.Equal(t, tt.wantCode, decodeErr.Code())
			assert.Equal(t, tt.hasID, !decodeErr.ID.IsZero())
		})
	}
}

func TestDecodeErrorMarksResponses(t *testing.T) {
	for input, want := range map[string]bool{
		`{"jsonrpc":"2.0","id":7,"result":1,"error":{"code":1,"message":"x"}}`: true,
		`{"jsonrpc":"2.0","id":7}`:                                             true,
		`{"jsonrpc":"2.0","id":7,"error":"boom"}`:                              true,
		`{"jsonrpc":"2.0","id":7,"method":""}`:                                 false,
		`{"jsonrpc":"1.0","id":7,"result":1}`:                                  false,
		`{not json}`:                                                           false,
	} {
		_, err := Decode([]byte(input))
		var decodeErr *DecodeError
		require.True(t, errors.As(err, &decodeErr), input)
		assert.Equal(t, want, decodeErr.Response, input)
	}
}

func TestDecodeClassification(t *testing.T) {
	msg, err := Decode([]byte(`{"jsonrpc":"2.0","id":"a","method":"m","params":{"x":1}}`))
	require.NoError(t, err)
	req, ok := msg.(*Request)
	require.True(t, ok)
	assert.Equal(t, NewStringID("a"), req.ID)
	assert.JSONEq(t, `{"x":1}`, string(req.Params))

	msg, err = Decode([]byte(`{"jsonrpc":"2.0","method":"m"}`))
	require.NoError(t, err)
	assert.IsType(t, &Notification{}, msg)

	msg, err = Decode([]byte(`{"jsonrpc":"2.0","id":2,"result":null}`))
	require.NoError(t, err)
	resp, ok := msg.(*Response)
	require.True(t, ok)
	assert.Equal(t, json.RawMessage("null"), resp.Result)
	assert.Nil(t, resp.Error)

	msg, err = Decode([]byte(`{"jsonrpc":"2.0","id":2,"result":{"ok":true},"error":null}`))
	require.NoError(t, err)
	assert.IsType(t, &Response{}, msg)

	msg, err = Decode([]byte("  {\"jsonrpc\":\"2.0\",\"method\":\"spaced\"}\r\n"))
	require.NoError(t, err)
	assert.Equal(t, &Notification{Method: "spaced"}, msg)
}
