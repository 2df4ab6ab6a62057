package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Text  string `json:"text"`
	Count int    `json:"count,omitempty"`
}

func TestJSONCodec(t *testing.T) {
	c := JSONCodec{}
	assert.Equal(t, "json", c.Name())

	data, err := c.Marshal(&sample{Text: "coffee 5", Count: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"coffee 5","count":2}`, string(data))

	var got sample
	require.NoError(t, c.Unmarshal(data, &got))
	assert.Equal(t, sample{Text: "coffee 5", Count: 2}, got)
}

func TestJSONCodec_UnmarshalEdgeCases(t *testing.T) {
	c := JSONCodec{}

	var empty sample
	require.NoError(t, c.Unmarshal([]byte("  "), &empty))
	assert.Equal(t, sample{}, empty)

	var s sample
	assert.Error(t, c.Unmarshal([]byte(`{"text":"x","extra":1}`), &s))
	assert.Error(t, c.Unmarshal([]byte(`{"text":"x"} {"text":"y"}`), &s))
	assert.Error(t, c.Unmarshal([]byte(`{"text":`), &s))
}

func TestProcedure(t *testing.T) {
	assert.Equal(t, "/capture.v1.CaptureService/ParseMessage", Procedure("capture.v1.CaptureService", "ParseMessage"))
}

func TestHandlerOptions(t *testing.T) {
	assert.Len(t, HandlerOptions(), 1)
}
