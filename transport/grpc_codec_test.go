package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncplane/syncplane/codec"
	"google.golang.org/grpc/encoding"
)

func TestJSONCodecIsRegistered(t *testing.T) {
	registered := encoding.GetCodec(CodecName)
	require.NotNil(t, registered)
	assert.Equal(t, CodecName, registered.Name())
}

func TestJSONCodecRoundTripsFrames(t *testing.T) {
	c := jsonCodec{}
	frame := &Frame{
		Kind:  FrameBatch,
		Batch: &codec.Batch{Table: "orgs", Records: 2, Data: []byte{0x01, 0x02, 0xFF}},
	}

	data, err := c.Marshal(frame)
	require.NoError(t, err)

	var got Frame
	require.NoError(t, c.Unmarshal(data, &got))
	assert.Equal(t, FrameBatch, got.Kind)
	require.NotNil(t, got.Batch)
	assert.Equal(t, "orgs", got.Batch.Table)
	assert.Equal(t, frame.Batch.Data, got.Batch.Data, "arrow payload bytes survive base64 transit")
}

func TestJSONCodecRoundTripsSyncRequest(t *testing.T) {
	c := jsonCodec{}
	req := SyncRequest{
		Tables:      []string{"org*"},
		Concurrency: 4,
		BatchSize:   100,
		Cursors:     []CursorState{{Table: "orgs", Client: "alpha", Cursor: "2024-05-01T00:00:00Z"}},
	}

	data, err := c.Marshal(&req)
	require.NoError(t, err)

	var got SyncRequest
	require.NoError(t, c.Unmarshal(data, &got))
	assert.Equal(t, req, got)
}
