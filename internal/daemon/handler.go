package daemon

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fribdaq/ringmaster/internal/inventory"
)

// clientRegistry is the per-connection record of (ring, Client)
// reservations the specification calls ClientRegistry. It is owned
// exclusively by the connectionHandler that built it -- there is no
// separate monitor thread; the connection's own read loop is the
// liveness signal, and the handler frees every reservation itself when
// that loop ends, for whatever reason.
type clientRegistry struct {
	byRing map[string][]inventory.Client
}

func newClientRegistry() *clientRegistry {
	return &clientRegistry{byRing: make(map[string][]inventory.Client)}
}

func (r *clientRegistry) add(ring string, c inventory.Client) {
	r.byRing[ring] = append(r.byRing[ring], c)
}

// remove deletes a reservation matching ring/client exactly, reporting
// whether one was found.
func (r *clientRegistry) remove(ring string, c inventory.Client) bool {
	list := r.byRing[ring]
	for i, existing := range list {
		if existing == c {
			r.byRing[ring] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// connectionHandler is the per-accept task: it parses request lines,
// dispatches by verb, issues replies, and holds the control socket open
// for the life of any CONNECT-style reservations this connection has
// taken out. Its exit -- for any reason -- is the sole trigger for
// freeing those reservations' ring-header slots.
type connectionHandler struct {
	conn    net.Conn
	inv     *inventory.Inventory
	hoister *Hoister
	logger  *zap.Logger

	reservations *clientRegistry
	claimedPid   *uint32
	local        bool
}

func newConnectionHandler(conn net.Conn, inv *inventory.Inventory, hoister *Hoister, logger *zap.Logger) *connectionHandler {
	return &connectionHandler{
		conn:         conn,
		inv:          inv,
		hoister:      hoister,
		logger:       logger,
		reservations: newClientRegistry(),
		local:        isLocal(conn.RemoteAddr()),
	}
}

// isLocal reports whether addr is 127.0.0.1 or ::1. Any other address,
// or one that cannot be parsed, is treated as non-local.
func isLocal(addr net.Addr) bool {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.Equal(net.IPv4(127, 0, 0, 1)) || ip.Equal(net.IPv6loopback)
}

// serve is the connection's read loop. It runs until EOF, a read error,
// or a terminal verb, then releases every reservation this connection
// holds.
func (h *connectionHandler) serve() {
	defer h.cleanup()

	reader := bufio.NewReader(h.conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if !h.handleLine(line) {
			return
		}
	}
}

// handleLine dispatches one request line. It returns false when the
// connection should be closed (a terminal verb, or any FAIL).
func (h *connectionHandler) handleLine(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		h.fail("Empty request")
		return false
	}

	verb := strings.ToUpper(fields[0])
	args := fields[1:]

	switch verb {
	case "LIST":
		h.handleList()
		return false
	case "REGISTER":
		return h.handleRegister(args)
	case "UNREGISTER":
		return h.handleUnregister(args)
	case "CONNECT":
		return h.handleConnect(args)
	case "DISCONNECT":
		return h.handleDisconnect(args)
	case "REMOTE":
		h.handleRemote(args)
		return false
	default:
		h.fail(fmt.Sprintf("Unknown verb %q", fields[0]))
		return false
	}
}

func (h *connectionHandler) ok() {
	fmt.Fprint(h.conn, "OK\r\n")
}

func (h *connectionHandler) okLine(rest string) {
	fmt.Fprintf(h.conn, "OK%s\r\n", rest)
}

func (h *connectionHandler) fail(reason string) {
	fmt.Fprintf(h.conn, "FAIL %s\r\n", reason)
}

func stripBraces(name string) string {
	if len(name) > 2 && strings.HasPrefix(name, "{") && strings.HasSuffix(name, "}") {
		return name[1 : len(name)-1]
	}
	return name
}

func (h *connectionHandler) requireLocal() bool {
	if !h.local {
		h.fail("Request must come from a local host")
		return false
	}
	return true
}

// claimPid enforces the single-pid-per-connection invariant: the first
// pid seen on a connection is remembered, and any later request must use
// the same value or be rejected as a spoof attempt.
func (h *connectionHandler) claimPid(pid uint32) bool {
	if h.claimedPid == nil {
		h.claimedPid = &pid
		return true
	}
	return *h.claimedPid == pid
}

func parsePid(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// parseRole parses "producer" or "consumer.N" into the client kind and,
// for a consumer, its slot number (0 for a producer).
func parseRole(role string) (kind inventory.ClientKind, slot uint32, err error) {
	if role == "producer" {
		return inventory.Producer, 0, nil
	}
	const prefix = "consumer."
	if !strings.HasPrefix(role, prefix) {
		return 0, 0, fmt.Errorf("unknown role %q", role)
	}
	n, err := strconv.ParseUint(role[len(prefix):], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid consumer slot in %q", role)
	}
	return inventory.Consumer, uint32(n), nil
}
