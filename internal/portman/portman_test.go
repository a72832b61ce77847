package portman

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePortman is a minimal stand-in for the real port-manager service,
// just enough of the GIMME/LIST protocol to exercise Client.
func fakePortman(t *testing.T, handle func(net.Conn)) (port uint16, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go handle(conn)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return uint16(addr.Port), func() {
		ln.Close()
		<-done
	}
}

func TestGetAllocatesPort(t *testing.T) {
	port, stop := fakePortman(t, func(conn net.Conn) {
		defer conn.Close()
		r := bufio.NewReader(conn)
		line, _ := r.ReadString('\n')
		if strings.HasPrefix(line, "GIMME ") {
			fmt.Fprintf(conn, "OK 5555\n")
		}
	})
	defer stop()

	c := New(port)
	defer c.Close()
	p, err := c.Get("RingMaster")
	require.NoError(t, err)
	assert.Equal(t, uint16(5555), p)
}

func TestGetDenied(t *testing.T) {
	port, stop := fakePortman(t, func(conn net.Conn) {
		defer conn.Close()
		r := bufio.NewReader(conn)
		r.ReadString('\n')
		fmt.Fprintf(conn, "FAIL already advertised\n")
	})
	defer stop()

	c := New(port)
	defer c.Close()
	_, err := c.Get("RingMaster")
	assert.ErrorIs(t, err, ErrRequestDenied)
}

func TestFindByServiceFiltersResults(t *testing.T) {
	port, stop := fakePortman(t, func(conn net.Conn) {
		defer conn.Close()
		r := bufio.NewReader(conn)
		r.ReadString('\n')
		fmt.Fprintf(conn, "OK 2\n")
		fmt.Fprintf(conn, "30001 RingMaster alice\n")
		fmt.Fprintf(conn, "30002 OtherService bob\n")
	})
	defer stop()

	c := New(port)
	defer c.Close()
	found, err := c.FindByService("RingMaster")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, uint16(30001), found[0].Port)
	assert.Equal(t, "alice", found[0].User)
}

func TestFindByServiceEmpty(t *testing.T) {
	port, stop := fakePortman(t, func(conn net.Conn) {
		defer conn.Close()
		r := bufio.NewReader(conn)
		r.ReadString('\n')
		fmt.Fprintf(conn, "OK 0\n")
	})
	defer stop()

	c := New(port)
	defer c.Close()
	found, err := c.FindByService("RingMaster")
	require.NoError(t, err)
	assert.Empty(t, found)
}
