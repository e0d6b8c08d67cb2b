package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ke0m/scaleup/internal/chunkstream"
)

func TestIsWorkRequest(t *testing.T) {
	assert.True(t, isWorkRequest(chunkstream.Fields{"ready": true}))
	assert.False(t, isWorkRequest(chunkstream.Fields{"ready": false}))
	assert.False(t, isWorkRequest(chunkstream.Fields{"ready": true, "result": 1}))
	assert.False(t, isWorkRequest(chunkstream.Fields{}))
}

func TestIsResultSubmission(t *testing.T) {
	assert.True(t, isResultSubmission(chunkstream.Fields{"result": chunkstream.Fields{}}))
	assert.False(t, isResultSubmission(chunkstream.Fields{"ready": true}))
}

func TestChunkIndexOf(t *testing.T) {
	idx, ok := chunkIndexOf(chunkstream.Fields{chunkstream.IndexKey: 3})
	assert.True(t, ok)
	assert.Equal(t, 3, idx)

	_, ok = chunkIndexOf(chunkstream.Fields{})
	assert.False(t, ok)
}

func TestResultFieldsOf(t *testing.T) {
	inner := chunkstream.Fields{"scale": 2.0}
	f, ok := resultFieldsOf(chunkstream.Fields{"result": inner})
	assert.True(t, ok)
	assert.Equal(t, inner, f)

	_, ok = resultFieldsOf(chunkstream.Fields{})
	assert.False(t, ok)
}

func TestStopAndAckPackets(t *testing.T) {
	stop := stopPacket()
	assert.Equal(t, true, stop["stop"])
	assert.Equal(t, -1, stop[chunkstream.IndexKey])

	ack := ackPacket()
	assert.Equal(t, true, ack["ack"])
}
