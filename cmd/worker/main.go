/*
Starts a reference worker that speaks the dispatch engine's REQ/REP protocol
directly over TCP: request work, compute a demo-specific result, submit it,
repeat until a stop packet arrives. It exists to exercise and demonstrate the
protocol end-to-end; real deployments supply their own worker executable
(spec.md §1, "worker executable" is an external collaborator).

For usage details, run worker with the command line flag -h or --help.
*/
package main

import (
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"

	"github.com/ke0m/scaleup/internal/chunkstream"
	"github.com/ke0m/scaleup/internal/clog"
	"github.com/ke0m/scaleup/internal/codec"
	"github.com/ke0m/scaleup/internal/dispatch"
)

func main() {
	var addr string
	var verbose bool

	root := &cobra.Command{
		Use:   "worker",
		Short: "Connect to a coordinator's dispatch endpoint and process chunks until stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				clog.Enable()
			}
			return run(addr)
		},
	}
	root.Flags().StringVarP(&addr, "addr", "a", "localhost:5555", "dispatch engine address (host:port)")
	root.Flags().BoolVarP(&verbose, "verbose", "l", false, "show logging output (for debugging)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(addr string) error {
	log := clog.New("worker", addr)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", addr, err)
	}
	defer conn.Close()

	for {
		reply, err := roundTrip(conn, chunkstream.Fields{"ready": true})
		if err != nil {
			return err
		}
		if stop, _ := reply["stop"].(bool); stop {
			log.Printf("received stop packet, exiting")
			return nil
		}
		idx, _ := reply[chunkstream.IndexKey].(int)
		if idx < 0 {
			log.Printf("received stop sentinel chunk_index, exiting")
			return nil
		}

		result := compute(reply)
		log.Printf("submitting result for chunk %d", idx)
		if _, err := roundTrip(conn, chunkstream.Fields{
			chunkstream.IndexKey: idx,
			"result":             result,
		}); err != nil {
			return err
		}
	}
}

// compute derives a result payload from a work packet. It recognizes the two
// built-in demo shapes (internal/demo): a "array" field means vectorscale
// (echo scale and array unchanged, the aggregator scales and sums them), a
// "scale" field without "array" means collect (derive result = scale * 2).
func compute(chunk chunkstream.Fields) chunkstream.Fields {
	if arr, ok := chunk["array"]; ok {
		return chunkstream.Fields{"scale": chunk["scale"], "array": arr}
	}
	scale, _ := chunk["scale"].(float64)
	return chunkstream.Fields{"scale": scale, "result": scale * 2}
}

func roundTrip(conn net.Conn, payload chunkstream.Fields) (chunkstream.Fields, error) {
	enc, err := codec.Encode(payload)
	if err != nil {
		return nil, err
	}
	if err := dispatch.WriteFrame(conn, enc); err != nil {
		return nil, err
	}
	raw, err := dispatch.ReadFrame(conn)
	if err != nil {
		return nil, err
	}
	return codec.Decode(raw)
}
