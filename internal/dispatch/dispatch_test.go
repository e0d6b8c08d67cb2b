package dispatch

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ke0m/scaleup/internal/aggregate"
	"github.com/ke0m/scaleup/internal/chunkstream"
	"github.com/ke0m/scaleup/internal/clog"
	"github.com/ke0m/scaleup/internal/codec"
)

func roundTrip(t *testing.T, conn net.Conn, payload chunkstream.Fields) chunkstream.Fields {
	t.Helper()
	enc, err := codec.Encode(payload)
	require.NoError(t, err)
	require.NoError(t, writeFrame(conn, enc))
	raw, err := readFrame(conn)
	require.NoError(t, err)
	out, err := codec.Decode(raw)
	require.NoError(t, err)
	return out
}

// runWorker drives one synchronous worker against addr until it receives a
// stop packet, computing results with compute for each chunk it is handed.
func runWorker(t *testing.T, addr string, compute func(chunk chunkstream.Fields) chunkstream.Fields) int {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	processed := 0
	for {
		reply := roundTrip(t, conn, workRequestPacket())
		if stop, _ := reply["stop"].(bool); stop {
			return processed
		}
		idx, _ := reply[chunkstream.IndexKey].(int)
		if idx < 0 {
			return processed
		}
		result := compute(reply)
		roundTrip(t, conn, resultPacket(idx, result))
		processed++
	}
}

// TestDispatchS1Collect is spec.md §8 scenario S1.
func TestDispatchS1Collect(t *testing.T) {
	n := 5
	source := chunkstream.NewFuncSource(n, func(pos int) chunkstream.Fields {
		return chunkstream.Fields{"scale": float64(pos + 1)}
	})
	agg := aggregate.NewCollect(n, []string{"result", "scale"})
	e := NewEngine(":0", source, agg, clog.New("test", "s1"))
	require.NoError(t, e.Bind())

	done := make(chan struct{})
	go func() {
		defer close(done)
		runWorker(t, e.Addr(), func(chunk chunkstream.Fields) chunkstream.Fields {
			scale := chunk["scale"].(float64)
			return chunkstream.Fields{"scale": scale, "result": scale * 2}
		})
		runWorker(t, e.Addr(), func(chunk chunkstream.Fields) chunkstream.Fields {
			scale := chunk["scale"].(float64)
			return chunkstream.Fields{"scale": scale, "result": scale * 2}
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := e.Run(ctx)
	require.NoError(t, err)
	<-done

	assert.Equal(t, []any{1.0, 2.0, 3.0, 4.0, 5.0}, out["scale"])
	assert.Equal(t, []any{2.0, 4.0, 6.0, 8.0, 10.0}, out["result"])
}

// TestDispatchS2Sum is spec.md §8 scenario S2.
func TestDispatchS2Sum(t *testing.T) {
	n := 3
	source := chunkstream.NewFuncSource(n, func(pos int) chunkstream.Fields {
		return chunkstream.Fields{"scale": float64(pos + 1), "array": []float64{1, 1, 1, 1}}
	})
	agg := aggregate.NewSum(n, "scale", "array", 4)
	e := NewEngine(":0", source, agg, clog.New("test", "s2"))
	require.NoError(t, e.Bind())

	done := make(chan struct{})
	go func() {
		defer close(done)
		var workers [3]chan struct{}
		for i := range workers {
			workers[i] = make(chan struct{})
			go func(ready chan struct{}) {
				defer close(ready)
				runWorker(t, e.Addr(), func(chunk chunkstream.Fields) chunkstream.Fields {
					return chunkstream.Fields{"scale": chunk["scale"], "array": chunk["array"]}
				})
			}(workers[i])
		}
		for _, w := range workers {
			<-w
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := e.Run(ctx)
	require.NoError(t, err)
	<-done

	assert.Equal(t, 6.0, out["scale"])
	assert.Equal(t, []float64{6, 6, 6, 6}, out["array"])
}

// TestDispatchS3SingleWorkerSerializesAllChunks is spec.md §8 scenario S3.
func TestDispatchS3SingleWorkerSerializesAllChunks(t *testing.T) {
	n := 10
	source := chunkstream.NewFuncSource(n, func(pos int) chunkstream.Fields {
		return chunkstream.Fields{"scale": float64(pos + 1)}
	})
	agg := aggregate.NewCollect(n, []string{"scale"})
	e := NewEngine(":0", source, agg, clog.New("test", "s3"))
	require.NoError(t, e.Bind())

	done := make(chan struct{})
	var processed int
	go func() {
		defer close(done)
		processed = runWorker(t, e.Addr(), func(chunk chunkstream.Fields) chunkstream.Fields {
			return chunkstream.Fields{"scale": chunk["scale"]}
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := e.Run(ctx)
	require.NoError(t, err)
	<-done

	assert.Equal(t, n, processed)
	assert.Equal(t, StateDone, e.State())
}

// TestDispatchS5MalformedMessageIsFatal is spec.md §8 scenario S5.
func TestDispatchS5MalformedMessageIsFatal(t *testing.T) {
	n := 1
	source := chunkstream.NewFuncSource(n, func(pos int) chunkstream.Fields { return chunkstream.Fields{} })
	agg := aggregate.NewCollect(n, nil)
	e := NewEngine(":0", source, agg, clog.New("test", "s5"))
	require.NoError(t, e.Bind())

	go func() {
		conn, err := net.Dial("tcp", e.Addr())
		if err != nil {
			return
		}
		defer conn.Close()
		// The server aborts without replying once it hits the malformed
		// message, so this goroutine only sends; it must not use
		// require/assert (they are not safe to fail from a non-test
		// goroutine once Run below has already returned).
		enc, err := codec.Encode(chunkstream.Fields{"neither_ready_nor_result": true})
		if err != nil {
			return
		}
		_ = writeFrame(conn, enc)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := e.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "protocol error")
}

// TestDispatchStopOnExhaustion is spec.md §8 property 6: once next_index
// reaches N (DRAINING), a work request from a second worker arriving before
// the first worker's result is back still gets a stop packet immediately.
func TestDispatchStopOnExhaustion(t *testing.T) {
	n := 1
	source := chunkstream.NewFuncSource(n, func(pos int) chunkstream.Fields { return chunkstream.Fields{} })
	agg := aggregate.NewCollect(n, nil)
	e := NewEngine(":0", source, agg, clog.New("test", "stop"))
	require.NoError(t, e.Bind())

	connA, err := net.Dial("tcp", e.Addr())
	require.NoError(t, err)
	defer connA.Close()
	connB, err := net.Dial("tcp", e.Addr())
	require.NoError(t, err)
	defer connB.Close()

	done := make(chan struct{})
	stopCh := make(chan bool, 1)
	go func() {
		defer close(done)
		first := roundTrip(t, connA, workRequestPacket())
		idx := first[chunkstream.IndexKey].(int)

		second := roundTrip(t, connB, workRequestPacket())
		stop, _ := second["stop"].(bool)
		stopCh <- stop

		roundTrip(t, connA, resultPacket(idx, chunkstream.Fields{}))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = e.Run(ctx)
	require.NoError(t, err)
	<-done

	assert.True(t, <-stopCh, "a work request received once next_index == N must get a stop packet")
}
