// Package dblock serialises test packages that truncate the shared policy
// tables. go test runs packages in parallel, and the repository and service
// suites would otherwise wipe each other's rules mid-test.
package dblock

import (
	"fmt"
	"net"
	"os"
	"time"
)

const lockAddr = "127.0.0.1:45432"

// DefaultWait bounds how long a package waits for another to finish.
const DefaultWait = 5 * time.Minute

// Acquire takes the cross-process lock when DATABASE_URL is set. Without a
// database the integration tests skip, so there is nothing to guard.
func Acquire(wait time.Duration) (func(), error) {
	if os.Getenv("DATABASE_URL") == "" {
		return func() {}, nil
	}
	return acquireAt(lockAddr, wait)
}

// acquireAt holds a TCP listener on addr as the lock; the OS frees it if the
// test binary dies.
func acquireAt(addr string, wait time.Duration) (func(), error) {
	deadline := time.Now().Add(wait)
	for {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return func() { ln.Close() }, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("policy table lock %s not acquired within %s: %w", addr, wait, err)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Main runs a test binary under the lock and exits with its code.
func Main(run func() int) {
	release, err := Acquire(DefaultWait)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	code := run()
	release()
	os.Exit(code)
}
