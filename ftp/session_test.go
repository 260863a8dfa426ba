package ftp

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionManagerTracksConnections(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	c1 := dialCtrl(t, srv)
	c2 := dialCtrl(t, srv)
	assert.Eventually(t, func() bool { return srv.sessionManager.Len() == 2 },
		5*time.Second, 10*time.Millisecond)

	c1.cmd("QUIT")
	assert.Eventually(t, func() bool { return srv.sessionManager.Len() == 1 },
		5*time.Second, 10*time.Millisecond)

	// an abrupt disconnect is removed the same way
	c2.conn.Close()
	assert.Eventually(t, func() bool { return srv.sessionManager.Len() == 0 },
		5*time.Second, 10*time.Millisecond)
}

func TestCloseDuringPassiveNegotiationReleasesPorts(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	// several sessions negotiate passive mode in a tight loop while the
	// server shuts down underneath them
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		c := dialCtrl(t, srv)
		c.login("admin", "secret")
		wg.Add(1)
		go func(c *ctrlConn) {
			defer wg.Done()
			for {
				if _, err := fmt.Fprintf(c.conn, "PASV\r\n"); err != nil {
					return
				}
				c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
				if _, err := c.r.ReadString('\n'); err != nil {
					return
				}
			}
		}(c)
	}

	time.Sleep(100 * time.Millisecond)
	srv.Close(fmt.Errorf("shutdown while negotiating"))
	wg.Wait()

	// shutdown must never strand a reserved passive port
	assert.Eventually(t, func() bool { return srv.pasvPool.Reserved() == 0 },
		5*time.Second, 10*time.Millisecond)
}

func TestServerCloseTearsDownSessions(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	c := dialCtrl(t, srv)
	c.login("admin", "secret")
	assert.True(t, srv.sessionManager.Len() >= 1)

	srv.Close(nil)

	// the control connection is gone and its resources released
	assert.Eventually(t, func() bool { return srv.sessionManager.Len() == 0 },
		5*time.Second, 10*time.Millisecond)
	assert.Zero(t, srv.pasvPool.Reserved())
}