// Package redisstub is a minimal in-process Redis speaking RESP2, covering
// the counter commands used by the login rate limiter.
package redisstub

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Options struct {
	Password string
}

type Server struct {
	opts     Options
	listener net.Listener
	mu       sync.Mutex
	kv       map[string]*kvEntry
	now      func() time.Time
	closed   chan struct{}
	commands []string
}

type kvEntry struct {
	value  int64
	expiry time.Time
}

type simpleString string

type replyError string

// Start listens on a random loopback port.
func Start(opts Options) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{
		opts:     opts,
		listener: ln,
		kv:       make(map[string]*kvEntry),
		now:      time.Now,
		closed:   make(chan struct{}),
	}
	go s.serve()
	return s, nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Advance moves the stub clock forward so expiries can be tested without
// sleeping.
func (s *Server) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.now()
	s.now = func() time.Time { return current.Add(d) }
}

// Commands returns the upper-cased command names received so far.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *Server) Close() error {
	s.mu.Lock()
	select {
	case <-s.closed:
		s.mu.Unlock()
		return nil
	default:
	}
	close(s.closed)
	s.mu.Unlock()
	return s.listener.Close()
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			continue
		}
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)
	authenticated := s.opts.Password == ""
	var queued [][]string
	inTx := false

	for {
		args, err := readArray(reader)
		if err != nil {
			return
		}
		if len(args) == 0 {
			continue
		}
		cmd := strings.ToUpper(args[0])
		s.record(cmd)

		var reply any
		switch {
		case cmd == "HELLO":
			// Forces the client back to RESP2.
			reply = replyError("ERR unknown command 'HELLO'")
		case cmd == "AUTH":
			if s.opts.Password == "" || args[len(args)-1] == s.opts.Password {
				authenticated = true
				reply = simpleString("OK")
			} else {
				reply = replyError("WRONGPASS invalid username-password pair")
			}
		case !authenticated:
			reply = replyError("NOAUTH Authentication required.")
		case cmd == "MULTI":
			inTx, queued = true, nil
			reply = simpleString("OK")
		case cmd == "DISCARD":
			inTx, queued = false, nil
			reply = simpleString("OK")
		case cmd == "EXEC":
			if !inTx {
				reply = replyError("ERR EXEC without MULTI")
				break
			}
			results := make([]any, 0, len(queued))
			for _, q := range queued {
				results = append(results, s.dispatch(q))
			}
			inTx, queued = false, nil
			reply = results
		case inTx:
			queued = append(queued, args)
			reply = simpleString("QUEUED")
		default:
			reply = s.dispatch(args)
		}

		if err := writeReply(writer, reply); err != nil {
			return
		}
		if err := writer.Flush(); err != nil {
			return
		}
	}
}

func (s *Server) record(cmd string) {
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	s.mu.Unlock()
}

func (s *Server) dispatch(args []string) any {
	cmd := strings.ToUpper(args[0])
	switch cmd {
	case "PING":
		return simpleString("PONG")
	case "SELECT", "CLIENT":
		return simpleString("OK")
	case "INCR":
		if len(args) != 2 {
			return replyError("ERR wrong number of arguments for 'incr'")
		}
		return s.incr(args[1])
	case "EXPIRE":
		if len(args) < 3 {
			return replyError("ERR wrong number of arguments for 'expire'")
		}
		seconds, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return replyError("ERR value is not an integer or out of range")
		}
		onlyNew := len(args) > 3 && strings.EqualFold(args[3], "NX")
		return s.expire(args[1], time.Duration(seconds)*time.Second, onlyNew)
	case "TTL":
		if len(args) != 2 {
			return replyError("ERR wrong number of arguments for 'ttl'")
		}
		return s.ttl(args[1])
	case "DEL":
		return s.del(args[1:])
	default:
		return replyError(fmt.Sprintf("ERR unknown command '%s'", args[0]))
	}
}

// liveLocked drops key when it expired. Callers hold s.mu.
func (s *Server) liveLocked(key string) *kvEntry {
	entry := s.kv[key]
	if entry != nil && !entry.expiry.IsZero() && !s.now().Before(entry.expiry) {
		delete(s.kv, key)
		return nil
	}
	return entry
}

func (s *Server) incr(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.liveLocked(key)
	if entry == nil {
		entry = &kvEntry{}
		s.kv[key] = entry
	}
	entry.value++
	return entry.value
}

func (s *Server) expire(key string, ttl time.Duration, onlyNew bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.liveLocked(key)
	if entry == nil || (onlyNew && !entry.expiry.IsZero()) {
		return 0
	}
	entry.expiry = s.now().Add(ttl)
	return 1
}

func (s *Server) ttl(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.liveLocked(key)
	switch {
	case entry == nil:
		return -2
	case entry.expiry.IsZero():
		return -1
	}
	remaining := entry.expiry.Sub(s.now())
	return int64((remaining + time.Second - 1) / time.Second)
}

func (s *Server) del(keys []string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for _, key := range keys {
		if s.liveLocked(key) != nil {
			delete(s.kv, key)
			removed++
		}
	}
	return removed
}

func readArray(r *bufio.Reader) ([]string, error) {
	prefix, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if prefix != '*' {
		return nil, fmt.Errorf("unexpected prefix %q", prefix)
	}
	length, err := readLength(r)
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, length)
	for i := 0; i < length; i++ {
		arg, err := readBulkString(r)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	return args, nil
}

func readLength(r *bufio.Reader) (int, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimRight(line, "\r\n"))
}

func readBulkString(r *bufio.Reader) (string, error) {
	prefix, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	if prefix != '$' {
		return "", fmt.Errorf("unexpected prefix %q", prefix)
	}
	length, err := readLength(r)
	if err != nil {
		return "", err
	}
	if length < 0 {
		return "", nil
	}
	buf := make([]byte, length+2)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf[:length]), nil
}

func writeReply(w *bufio.Writer, reply any) error {
	var err error
	switch v := reply.(type) {
	case simpleString:
		_, err = fmt.Fprintf(w, "+%s\r\n", v)
	case replyError:
		_, err = fmt.Fprintf(w, "-%s\r\n", v)
	case int64:
		_, err = fmt.Fprintf(w, ":%d\r\n", v)
	case string:
		_, err = fmt.Fprintf(w, "$%d\r\n%s\r\n", len(v), v)
	case nil:
		_, err = w.WriteString("$-1\r\n")
	case []any:
		if _, err = fmt.Fprintf(w, "*%d\r\n", len(v)); err != nil {
			return err
		}
		for _, item := range v {
			if err = writeReply(w, item); err != nil {
				return err
			}
		}
	default:
		err = errors.New("redisstub: unsupported reply type")
	}
	return err
}
