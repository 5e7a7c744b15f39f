package tor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nao1215/tornago"
)

// CircuitBuilt is the status of a fully established circuit.
const CircuitBuilt = tornago.CircuitStatusBuilt

// Circuit is one entry of the circuit-status listing.
type Circuit struct {
	ID      string
	Status  string
	Purpose string
}

// circuitStatusPrefix is left on the first ID by tornago when Tor answers
// with a single-line reply, i.e. exactly one circuit.
const circuitStatusPrefix = "circuit-status="

func fromCircuitInfo(infos []tornago.CircuitInfo) []Circuit {
	circuits := make([]Circuit, 0, len(infos))
	for _, info := range infos {
		id := strings.TrimPrefix(info.ID, circuitStatusPrefix)
		if id == "" {
			continue
		}
		circuits = append(circuits, Circuit{ID: id, Status: info.Status, Purpose: info.Purpose})
	}
	return circuits
}

// builtCircuits returns the IDs of BUILT circuits in listing order.
func builtCircuits(ctx context.Context, conn Conn) ([]string, error) {
	circuits, err := conn.CircuitStatus(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, c := range circuits {
		if c.Status == CircuitBuilt {
			ids = append(ids, c.ID)
		}
	}
	return ids, nil
}

// SubscribeCircuits calls onBuilt once for every circuit that reaches
// BUILT while the subscription runs. It reads circuit-status every
// interval and reports IDs absent from the previous read; the first read
// only seeds the known set. A circuit that is built and closed between two
// reads is not seen.
//
// It returns nil when ctx is cancelled and an error wrapping
// ErrConnectionLost when a read fails, which doubles as the liveness check
// of the connection. Callbacks run on the calling goroutine in listing order.
func SubscribeCircuits(ctx context.Context, conn Conn, interval time.Duration, onBuilt func(id string)) error {
	ids, err := builtCircuits(ctx, conn)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
	known := toSet(ids)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		ids, err := builtCircuits(ctx, conn)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrConnectionLost, err)
		}
		for _, id := range ids {
			if _, ok := known[id]; !ok {
				onBuilt(id)
			}
		}
		known = toSet(ids)
	}
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
