// Package httpexposer implements the scheduler's minimal HTTP endpoint: a
// raw TCP accept loop feeding a bounded pool of worker goroutines, exactly
// reproducing the bind/listen/backlog/worker-pool/drop-when-full behavior
// of the reference implementation's MetricsHttpServer.
package httpexposer

import (
	"bufio"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ja7ad/taskscheduler/pkg/log"
)

const (
	listenBacklog = 64
	queueCapacity = 128
	readBufBytes  = 1024
)

// Handler returns the body for GET /metrics.
type Handler func() string

// Exposer is a minimal HTTP/1.1 server: GET /metrics invokes Handler, any
// other path (including /health) returns "ok\n". Every response is 200 OK,
// Connection: close, with a correct Content-Length.
type Exposer struct {
	running atomic.Bool
	handler Handler

	ln net.Listener

	acceptWG sync.WaitGroup
	workerWG sync.WaitGroup

	conns chan net.Conn
	done  chan struct{}
}

// New returns an unstarted Exposer.
func New() *Exposer {
	return &Exposer{}
}

// Start binds port on all interfaces and spawns the accept goroutine and
// worker pool. Returns an error if the listener cannot be created.
func (e *Exposer) Start(port int, handler Handler) error {
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("httpexposer: already running")
	}
	e.handler = handler
	e.conns = make(chan net.Conn, queueCapacity)
	e.done = make(chan struct{})

	// net.Listen has no portable backlog knob; the platform's listen(2)
	// default satisfies the >= 64 backlog this package is specified to use.
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		e.running.Store(false)
		return fmt.Errorf("httpexposer: listen: %w", err)
	}
	e.ln = ln

	workerCount := runtime.NumCPU()
	if workerCount < 2 {
		workerCount = 2
	}

	e.acceptWG.Add(1)
	go e.acceptLoop()

	for i := 0; i < workerCount; i++ {
		e.workerWG.Add(1)
		go e.workerLoop()
	}

	log.WithComponent("httpexposer").Info().Int("port", port).Int("workers", workerCount).Msg("exposer started")
	return nil
}

// Stop shuts down the listener, drains the worker pool, and joins every
// goroutine it spawned. Idempotent.
func (e *Exposer) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	if e.ln != nil {
		_ = e.ln.Close()
	}
	close(e.done)
	e.acceptWG.Wait()
	close(e.conns)
	e.workerWG.Wait()
	log.WithComponent("httpexposer").Info().Msg("exposer stopped")
}

func (e *Exposer) acceptLoop() {
	defer e.acceptWG.Done()
	for {
		conn, err := e.ln.Accept()
		if err != nil {
			select {
			case <-e.done:
				return
			default:
				continue
			}
		}
		select {
		case e.conns <- conn:
		default:
			// bounded FIFO is full: close and drop the new connection.
			_ = conn.Close()
		}
	}
}

func (e *Exposer) workerLoop() {
	defer e.workerWG.Done()
	for conn := range e.conns {
		e.serve(conn)
	}
}

func (e *Exposer) serve(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	buf := make([]byte, readBufBytes)
	n, _ := conn.Read(buf)

	path := "/"
	if n > 0 {
		path = parseRequestPath(string(buf[:n]))
	}

	body := "ok\n"
	contentType := "text/plain"
	if path == "/metrics" && e.handler != nil {
		body = e.handler()
	}

	resp := buildResponse(body, contentType)
	_, _ = conn.Write([]byte(resp))
}

// parseRequestPath extracts the path from an HTTP request line, e.g.
// "GET /metrics HTTP/1.1\r\n..." -> "/metrics".
func parseRequestPath(req string) string {
	line, _, _ := strings.Cut(req, "\r\n")
	if line == "" {
		line, _, _ = strings.Cut(req, "\n")
	}
	sc := bufio.NewScanner(strings.NewReader(line))
	sc.Split(bufio.ScanWords)
	var fields []string
	for sc.Scan() {
		fields = append(fields, sc.Text())
	}
	if len(fields) < 2 {
		return "/"
	}
	return fields[1]
}

func buildResponse(body, contentType string) string {
	var b strings.Builder
	b.WriteString("HTTP/1.1 200 OK\r\n")
	b.WriteString("Content-Type: " + contentType + "\r\n")
	b.WriteString("Content-Length: " + strconv.Itoa(len(body)) + "\r\n")
	b.WriteString("Connection: close\r\n\r\n")
	b.WriteString(body)
	return b.String()
}
