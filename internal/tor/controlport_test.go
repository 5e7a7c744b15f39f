package tor

import (
	"bufio"
	"context"
	"errors"
	"net"
	"slices"
	"strings"
	"testing"
	"time"
)

// Replies as Tor sends them for GETINFO circuit-status. No circuits gives an
// empty single-line value, one circuit a single-line value and two or more
// a 250+ data block.
const (
	noCircuitsReply  = "250-circuit-status=\r\n250 OK\r\n"
	oneCircuitReply  = "250-circuit-status=1 BUILT $AAAA~relay1,$BBBB~relay2,$CCCC~relay3 BUILD_FLAGS=NEED_CAPACITY PURPOSE=GENERAL\r\n250 OK\r\n"
	manyCircuitReply = "250+circuit-status=\r\n" +
		"1 BUILT $AAAA~relay1,$BBBB~relay2 PURPOSE=GENERAL\r\n" +
		"2 BUILT $CCCC~relay3,$DDDD~relay4 PURPOSE=HS_SERVICE_REND\r\n" +
		"3 EXTENDED $EEEE~relay5 PURPOSE=HS_SERVICE_INTRO\r\n" +
		".\r\n" +
		"250 OK\r\n"
	laterCircuitReply = "250+circuit-status=\r\n" +
		"2 BUILT $CCCC~relay3,$DDDD~relay4 PURPOSE=HS_SERVICE_REND\r\n" +
		"3 BUILT $EEEE~relay5,$FFFF~relay6 PURPOSE=HS_SERVICE_INTRO\r\n" +
		"4 BUILT $AAAA~relay1,$FFFF~relay6 PURPOSE=GENERAL\r\n" +
		".\r\n" +
		"250 OK\r\n"
)

// startControlPort serves a single control connection on a loopback port.
// GETINFO circuit-status is answered with circuitReplies in order; once they
// run out the connection is closed. GETCONF is answered from conf.
func startControlPort(t *testing.T, circuitReplies []string, conf map[string]string) string {
	t.Helper()

	lc := net.ListenConfig{}
	listener, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	t.Cleanup(func() { _ = listener.Close() }) //nolint:errcheck

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		reader := bufio.NewReader(conn)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			command := strings.TrimRight(line, "\r\n")

			var reply string
			switch {
			case strings.HasPrefix(command, "AUTHENTICATE"):
				reply = "250 OK\r\n"
			case command == "GETINFO circuit-status":
				if len(circuitReplies) == 0 {
					return
				}
				reply = circuitReplies[0]
				circuitReplies = circuitReplies[1:]
			case strings.HasPrefix(command, "GETCONF "):
				key := strings.TrimPrefix(command, "GETCONF ")
				if value, ok := conf[key]; ok {
					reply = "250 " + key + "=" + value + "\r\n"
				} else {
					reply = "552 Unrecognized configuration key \"" + key + "\"\r\n"
				}
			default:
				reply = "510 Unrecognized command\r\n"
			}
			if _, err := conn.Write([]byte(reply)); err != nil {
				return
			}
		}
	}()

	return listener.Addr().String()
}

func dialControlPort(t *testing.T, addr string) Conn {
	t.Helper()

	d := NewControlDialer(addr, WithPasswordAuth("secret"), WithControlTimeout(2*time.Second))
	conn, err := d.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial() returned error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() }) //nolint:errcheck
	return conn
}

// TestControlConn_CircuitStatus tests reading circuit-status over the
// control protocol for each reply shape Tor uses.
func TestControlConn_CircuitStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		reply    string
		expected []Circuit
	}{
		{
			name:     "no circuits",
			reply:    noCircuitsReply,
			expected: []Circuit{},
		},
		{
			name:     "one circuit",
			reply:    oneCircuitReply,
			expected: []Circuit{{ID: "1", Status: CircuitBuilt, Purpose: "GENERAL"}},
		},
		{
			name:  "data block",
			reply: manyCircuitReply,
			expected: []Circuit{
				{ID: "1", Status: CircuitBuilt, Purpose: "GENERAL"},
				{ID: "2", Status: CircuitBuilt, Purpose: "HS_SERVICE_REND"},
				{ID: "3", Status: "EXTENDED", Purpose: "HS_SERVICE_INTRO"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			conn := dialControlPort(t, startControlPort(t, []string{tt.reply}, nil))
			got, err := conn.CircuitStatus(context.Background())
			if err != nil {
				t.Fatalf("CircuitStatus() returned error: %v", err)
			}
			if !slices.Equal(got, tt.expected) {
				t.Errorf("CircuitStatus() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

// TestSubscribeCircuits_ControlPort tests that circuits built between reads
// are reported and that a closed control connection ends the subscription.
func TestSubscribeCircuits_ControlPort(t *testing.T) {
	t.Parallel()

	addr := startControlPort(t, []string{
		noCircuitsReply,
		oneCircuitReply,
		manyCircuitReply,
		laterCircuitReply,
	}, nil)
	conn := dialControlPort(t, addr)

	var built []string
	err := SubscribeCircuits(context.Background(), conn, time.Millisecond, func(id string) {
		built = append(built, id)
	})

	if !errors.Is(err, ErrConnectionLost) {
		t.Errorf("expected ErrConnectionLost, got %v", err)
	}
	if !slices.Equal(built, []string{"1", "2", "3", "4"}) {
		t.Errorf("built = %v, expected [1 2 3 4]", built)
	}
}

// TestControlConn_GetConf tests reading a single torrc option.
func TestControlConn_GetConf(t *testing.T) {
	t.Parallel()

	t.Run("known option", func(t *testing.T) {
		t.Parallel()
		conn := dialControlPort(t, startControlPort(t, nil, map[string]string{"SafeLogging": "0"}))
		value, err := conn.GetConf(context.Background(), "SafeLogging")
		if err != nil {
			t.Fatalf("GetConf() returned error: %v", err)
		}
		if value != "0" {
			t.Errorf("GetConf() = %q, expected \"0\"", value)
		}
	})

	t.Run("unknown option", func(t *testing.T) {
		t.Parallel()
		conn := dialControlPort(t, startControlPort(t, nil, nil))
		if _, err := conn.GetConf(context.Background(), "NoSuchOption"); err == nil {
			t.Error("expected error for unknown option")
		}
	})
}
