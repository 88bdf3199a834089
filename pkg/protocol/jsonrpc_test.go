package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	var id RequestID
	assert.True(t, id.IsZero())
	assert.Equal(t, "null", id.String())

	data, err := json.Marshal(NewIntID(42))
	require.NoError(t, err)
	assert.Equal(t, "42", string(data))

	data, err = json.Marshal(NewStringID("abc"))
	require.NoError(t, err)
	assert.Equal(t, `"abc"`, string(data))

	require.NoError(t, json.Unmarshal([]byte(`17`), &id))
	assert.Equal(t, NewIntID(17), id)
	assert.Equal(t, "17", id.String())

	require.NoError(t, json.Unmarshal([]byte(`"17"`), &id))
	assert.Equal(t, NewStringID("17"), id)
	assert.NotEqual(t, NewIntID(17), id)

	assert.Error(t, json.Unmarshal([]byte(`true`), &id))
	assert.Error(t, json.Unmarshal([]byte(`2.5`), &id))

	pending := map[RequestID]string{NewIntID(1): "int", NewStringID("1"): "string"}
	assert.Len(t, pending, 2)
}

func TestNewRequest(t *testing.T) {
	req, err := NewRequest(NewIntID(1), "test.method", nil)
	require.NoError(t, err)
	assert.Equal(t, "test.method", req.Method)
	assert.Nil(t, req.Params)

	req, err = NewRequest(NewStringID("req-2"), "test.method", map[string]interface{}{"key": "value", "num": 42})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"value","num":42}`, string(req.Params))

	raw := json.RawMessage(`{"already":"encoded"}`)
	req, err = NewRequest(NewIntID(3), "m", raw)
	require.NoError(t, err)
	assert.Equal(t, raw, req.Params)

	_, err = NewRequest(NewIntID(4), "m", make(chan int))
	assert.Error(t, err)
}

func TestNewResponse(t *testing.T) {
	resp, err := NewResponse(NewIntID(1), nil)
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage("null"), resp.Result)
	assert.Nil(t, resp.Error)

	resp, err = NewResponse(NewIntID(2), map[string]int{"sum": 5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"sum":5}`, string(resp.Result))
}

func TestNewErrorResponse(t *testing.T) {
	resp, err := NewErrorResponse(NewIntID(1), MethodNotFound, "method not found", map[string]string{"method": "foo"})
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Nil(t, resp.Result)
	assert.Equal(t, MethodNotFound, resp.Error.Code)
	assert.JSONEq(t, `{"method":"foo"}`, string(resp.Error.Data))
	assert.Equal(t, "rpc error -32601: method not found", resp.Error.Error())
}

func TestErrorCodeRanges(t *testing.T) {
	for _, code := range []ErrorCode{ParseError, InvalidRequest, MethodNotFound, InvalidParams, InternalError, InitializationFailed, NotInitialized, ConnectionLost, RequestCancelled} {
		assert.True(t, IsProtocolCode(code), "code %d should be reserved", code)
	}
	assert.False(t, IsProtocolCode(1))
	assert.False(t, IsProtocolCode(-31999))
	assert.False(t, IsProtocolCode(-32769))

	appErr := NewApplicationError(42, "quota exceeded")
	assert.Equal(t, ErrorCode(42), appErr.Code)

	clamped := NewApplicationError(MethodNotFound, "sneaky")
	assert.Equal(t, InternalError, clamped.Code)
}

func TestErrorf(t *testing.T) {
	err := Errorf(InvalidParams, "b must be %s", "non-zero")
	assert.Equal(t, InvalidParams, err.Code)
	assert.Equal(t, "b must be non-zero", err.Message)
	assert.Nil(t, err.Data)
}
