// Package dispatch implements the dispatch engine of spec.md §4.4: a single
// REQ/REP endpoint that hands out exactly one chunk per worker request,
// collects exactly one result per worker, and assembles per-chunk results
// into a user-chosen aggregate via internal/aggregate.
//
// The engine is logically a single-threaded cooperative loop (spec.md §5):
// Run processes one inbound message at a time and is the only place that
// touches dispatch state. Network I/O runs on a goroutine per connection, but
// those goroutines only ever hand messages to Run over a channel and wait for
// a reply; they never read or mutate engine state themselves.
package dispatch

import (
	"context"
	"fmt"
	"net"

	"github.com/ke0m/scaleup/internal/aggregate"
	"github.com/ke0m/scaleup/internal/chunkstream"
	"github.com/ke0m/scaleup/internal/clog"
	"github.com/ke0m/scaleup/internal/codec"
	"github.com/ke0m/scaleup/internal/errs"
)

// State is the dispatch engine's state machine (spec.md §4.4).
type State int

const (
	StateDispatching State = iota
	StateDraining
	StateDone
)

func (s State) String() string {
	switch s {
	case StateDispatching:
		return "DISPATCHING"
	case StateDraining:
		return "DRAINING"
	default:
		return "DONE"
	}
}

type inboundMsg struct {
	payload chunkstream.Fields
	reply   chan chunkstream.Fields
}

// Engine binds a single REQ/REP endpoint and drives the per-chunk protocol
// to completion.
type Engine struct {
	addr   string
	source chunkstream.Source
	agg    *aggregate.Aggregator
	log    *clog.CLogger

	listener net.Listener
	incoming chan inboundMsg
	fatal    chan error

	n           int
	nextIndex   int
	remaining   int
	outstanding map[int]bool
	completed   map[int]bool
	state       State
}

// NewEngine constructs an Engine over source, aggregating into agg. source
// and agg must agree on the total chunk count N.
func NewEngine(addr string, source chunkstream.Source, agg *aggregate.Aggregator, log *clog.CLogger) *Engine {
	n := source.Len()
	e := &Engine{
		addr:        addr,
		source:      source,
		agg:         agg,
		log:         log,
		incoming:    make(chan inboundMsg, 64),
		fatal:       make(chan error, 1),
		n:           n,
		remaining:   n,
		outstanding: make(map[int]bool),
		completed:   make(map[int]bool, n),
	}
	e.refreshState()
	return e
}

// Bind opens the listening socket and starts accepting worker connections.
// It must be called once before Run.
func (e *Engine) Bind() error {
	l, err := net.Listen("tcp", e.addr)
	if err != nil {
		return &errs.IOError{Cause: err}
	}
	e.listener = l
	go e.acceptLoop()
	return nil
}

// Addr returns the bound address, useful when Bind was given ":0".
func (e *Engine) Addr() string {
	if e.listener == nil {
		return e.addr
	}
	return e.listener.Addr().String()
}

func (e *Engine) acceptLoop() {
	for {
		conn, err := e.listener.Accept()
		if err != nil {
			return // listener closed, normal shutdown
		}
		go e.serveConn(conn)
	}
}

func (e *Engine) serveConn(conn net.Conn) {
	defer conn.Close()
	for {
		raw, err := readFrame(conn)
		if err != nil {
			return // peer closed or network error: ends only this connection
		}
		payload, err := codec.Decode(raw)
		if err != nil {
			e.reportFatal(err)
			return
		}

		reply := make(chan chunkstream.Fields, 1)
		e.incoming <- inboundMsg{payload: payload, reply: reply}
		out, ok := <-reply
		if !ok {
			return // engine shut down before replying
		}

		respBytes, err := codec.Encode(out)
		if err != nil {
			e.reportFatal(err)
			return
		}
		if err := writeFrame(conn, respBytes); err != nil {
			return
		}
	}
}

func (e *Engine) reportFatal(err error) {
	select {
	case e.fatal <- err:
	default:
	}
}

// Run drives the dispatch loop until the engine reaches DONE or ctx is
// canceled, whichever comes first. On success it returns the aggregator's
// final output; after DONE the endpoint stays open until ctx ends and answers
// every late message with a stop packet, so workers that ask again after the
// final result exit cleanly.
func (e *Engine) Run(ctx context.Context) (chunkstream.Fields, error) {
	for e.state != StateDone {
		select {
		case <-ctx.Done():
			e.listener.Close()
			return nil, &errs.IOError{Cause: ctx.Err()}
		case err := <-e.fatal:
			e.listener.Close()
			return nil, err
		case msg := <-e.incoming:
			out, err := e.handle(msg.payload)
			if err != nil {
				close(msg.reply)
				e.listener.Close()
				return nil, err
			}
			msg.reply <- out
		}
	}

	go func() {
		defer e.listener.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-e.incoming:
				msg.reply <- stopPacket()
			}
		}
	}()
	return e.agg.Output(), nil
}

// State reports the engine's current dispatch state.
func (e *Engine) State() State { return e.state }

func (e *Engine) handle(payload chunkstream.Fields) (chunkstream.Fields, error) {
	switch {
	case isResultSubmission(payload):
		return e.handleResult(payload)
	case isWorkRequest(payload):
		return e.handleWorkRequest(), nil
	default:
		return nil, &errs.ProtocolError{Cause: fmt.Errorf("message has neither ready nor result field")}
	}
}

func (e *Engine) handleResult(payload chunkstream.Fields) (chunkstream.Fields, error) {
	idx, ok := chunkIndexOf(payload)
	if !ok {
		return nil, &errs.ProtocolError{Cause: fmt.Errorf("result submission missing chunk_index")}
	}
	result, ok := resultFieldsOf(payload)
	if !ok {
		return nil, &errs.ProtocolError{Cause: fmt.Errorf("result submission missing result payload")}
	}

	switch {
	case e.outstanding[idx]:
		if err := e.agg.Accumulate(idx, result); err != nil {
			return nil, err
		}
		delete(e.outstanding, idx)
		e.completed[idx] = true
		e.remaining--
	case e.completed[idx]:
		// Duplicate result for a chunk no longer outstanding: idempotent
		// discard, no log (spec.md §4.4 Delivery guarantees).
	default:
		e.log.Errorf("discarding result for unknown chunk_index %d", idx)
	}

	e.refreshState()
	return ackPacket(), nil
}

func (e *Engine) handleWorkRequest() chunkstream.Fields {
	if e.nextIndex >= e.n {
		return stopPacket()
	}

	fields, ok := e.source.Next()
	if !ok {
		// Source disagrees with its own declared Len(); treat remaining
		// requests as exhausted rather than panic.
		e.nextIndex = e.n
		e.refreshState()
		return stopPacket()
	}

	idx := e.nextIndex
	out := make(chunkstream.Fields, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out[chunkstream.IndexKey] = idx

	e.outstanding[idx] = true
	e.nextIndex++
	e.refreshState()
	return out
}

func (e *Engine) refreshState() {
	if e.state == StateDispatching && e.nextIndex == e.n {
		e.state = StateDraining
	}
	if e.state == StateDraining && e.remaining == 0 {
		e.state = StateDone
	}
}
