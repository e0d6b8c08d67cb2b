package dispatch

import "github.com/ke0m/scaleup/internal/chunkstream"

// isWorkRequest reports whether msg is a work request: ready == true and no
// result field (spec.md §6).
func isWorkRequest(msg chunkstream.Fields) bool {
	if _, hasResult := msg["result"]; hasResult {
		return false
	}
	ready, ok := msg["ready"].(bool)
	return ok && ready
}

// isResultSubmission reports whether msg is a result submission: it carries
// a "result" field (spec.md §6).
func isResultSubmission(msg chunkstream.Fields) bool {
	_, ok := msg["result"]
	return ok
}

// chunkIndexOf extracts the chunk_index field as an int.
func chunkIndexOf(msg chunkstream.Fields) (int, bool) {
	v, ok := msg[chunkstream.IndexKey]
	if !ok {
		return 0, false
	}
	idx, ok := v.(int)
	return idx, ok
}

// resultFieldsOf extracts the nested result payload from a result
// submission message.
func resultFieldsOf(msg chunkstream.Fields) (chunkstream.Fields, bool) {
	v, ok := msg["result"]
	if !ok {
		return nil, false
	}
	f, ok := v.(chunkstream.Fields)
	return f, ok
}

// stopPacket builds the sentinel sent once the chunk stream is exhausted.
func stopPacket() chunkstream.Fields {
	return chunkstream.Fields{"stop": true, chunkstream.IndexKey: -1}
}

// ackPacket builds the minimal acknowledgement sent in reply to a result
// submission; workers do not inspect its contents (spec.md §4.4).
func ackPacket() chunkstream.Fields {
	return chunkstream.Fields{"ack": true}
}

// workRequestPacket builds the message a worker sends to request work.
func workRequestPacket() chunkstream.Fields {
	return chunkstream.Fields{"ready": true}
}

// resultPacket builds the message a worker sends back with a completed
// result.
func resultPacket(chunkIndex int, result chunkstream.Fields) chunkstream.Fields {
	return chunkstream.Fields{chunkstream.IndexKey: chunkIndex, "result": result}
}
