// Connblast opens many concurrent connections through the forwarder against
// an echoing upstream and verifies that every connection gets exactly its
// own bytes back.
//
// Usage:
//
//	go run ./scripts/connblast -addr 127.0.0.1:9000 -conns 100 -bytes 65536
package main

import (
	"bytes"
	"crypto/rand"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"time"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9000", "forwarder address")
	conns := flag.Int("conns", 50, "number of concurrent connections")
	size := flag.Int("bytes", 65536, "payload size per connection")
	flag.Parse()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures int
	)

	start := time.Now()

	for i := 0; i < *conns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := blast(*addr, *size); err != nil {
				mu.Lock()
				failures++
				mu.Unlock()
				log.Printf("conn %d: %v", i, err)
			}
		}(i)
	}

	wg.Wait()

	fmt.Printf("%d connections, %d failures, %s\n", *conns, failures, time.Since(start).Round(time.Millisecond))
	if failures > 0 {
		os.Exit(1)
	}
}

func blast(addr string, size int) error {
	payload := make([]byte, size)
	if _, err := rand.Read(payload); err != nil {
		return err
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	errCh := make(chan error, 1)
	go func() {
		if _, err := conn.Write(payload); err != nil {
			errCh <- err
			return
		}
		errCh <- conn.(*net.TCPConn).CloseWrite()
	}()

	got, err := io.ReadAll(conn)
	if err != nil {
		return err
	}
	if err := <-errCh; err != nil {
		return err
	}

	if !bytes.Equal(got, payload) {
		return fmt.Errorf("payload mismatch: sent %d bytes, got %d back", len(payload), len(got))
	}
	return nil
}
