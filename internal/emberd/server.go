package emberd

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/sammcvicker/ember/internal/embedder"
)

// acceptReadTimeout bounds how long Accept blocks before the server
// re-checks shutdown and idle-timeout state.
const acceptReadTimeout = 2 * time.Second

// connReadTimeout bounds how long a single connection's request read
// may take.
const connReadTimeout = 30 * time.Second

// Server holds an embedder in memory and services requests over a
// Unix domain socket, one request per connection, per spec.md §4.8.
type Server struct {
	socketPath string
	emb        embedder.Embedder
	idleAfter  time.Duration

	listener net.Listener
	started  time.Time

	mu           sync.Mutex
	lastActivity time.Time
	shuttingDown bool
	wg           sync.WaitGroup
}

// NewServer builds a Server bound to socketPath, holding emb in
// memory. idleAfter is T_idle: the server stops itself after this long
// without a request.
func NewServer(socketPath string, emb embedder.Embedder, idleAfter time.Duration) *Server {
	return &Server{
		socketPath: socketPath,
		emb:        emb,
		idleAfter:  idleAfter,
	}
}

// ListenAndServe binds the socket and accepts connections until ctx is
// cancelled, an OpShutdown request arrives, or the server goes idle
// longer than idleAfter.
func (s *Server) ListenAndServe(ctx context.Context) error {
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	s.listener = listener
	s.started = time.Now()
	s.lastActivity = s.started

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	stop := make(chan struct{})
	var stopOnce sync.Once
	stopServing := func() { stopOnce.Do(func() { close(stop) }) }
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		s.mu.Lock()
		s.shuttingDown = true
		s.mu.Unlock()
		_ = listener.Close()
	}()

	backoff := 100 * time.Millisecond
	const maxBackoff = 2 * time.Second

	for {
		if s.isShuttingDown() {
			break
		}
		if s.idleExpired() {
			slog.Info("emberd idle timeout reached, shutting down", slog.Duration("idle_after", s.idleAfter))
			stopServing()
			break
		}

		if unixListener, ok := listener.(*net.UnixListener); ok {
			_ = unixListener.SetDeadline(time.Now().Add(acceptReadTimeout))
		}

		conn, err := listener.Accept()
		if err != nil {
			if s.isShuttingDown() {
				break
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			slog.Warn("emberd accept error", slog.String("error", err.Error()))
			time.Sleep(backoff)
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = 100 * time.Millisecond

		s.mu.Lock()
		s.lastActivity = time.Now()
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			shutdownRequested := make(chan struct{}, 1)
			s.handleConnection(conn, shutdownRequested)
			select {
			case <-shutdownRequested:
				stopServing()
			default:
			}
		}()
	}

	s.wg.Wait()
	return nil
}

func (s *Server) isShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shuttingDown
}

func (s *Server) idleExpired() bool {
	if s.idleAfter <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity) > s.idleAfter
}

// handleConnection reads exactly one request. Anything beyond the
// first decoded message on the same connection is a protocol
// violation per spec.md §4.8 and is discarded.
func (s *Server) handleConnection(conn net.Conn, shutdownRequested chan<- struct{}) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(connReadTimeout))

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var req Request
	if err := decoder.Decode(&req); err != nil {
		_ = encoder.Encode(errResponse(ErrCodeBadRequest, "malformed request"))
		return
	}

	resp := s.dispatch(req)
	_ = encoder.Encode(resp)

	if req.Op == OpShutdown && resp.Status == StatusOK {
		select {
		case shutdownRequested <- struct{}{}:
		default:
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()

	switch req.Op {
	case OpHealth:
		return okResponse(HealthResult{
			PID:         os.Getpid(),
			UptimeSec:   int64(time.Since(s.started).Seconds()),
			Model:       s.emb.Name(),
			Dim:         s.emb.Dim(),
			Fingerprint: s.emb.Fingerprint(),
		})
	case OpShutdown:
		return okResponse(nil)
	case OpEmbed:
		return s.handleEmbed(req.Payload)
	default:
		return errResponse(ErrCodeBadRequest, "unknown op")
	}
}

func (s *Server) handleEmbed(payload any) Response {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errResponse(ErrCodeBadRequest, "cannot encode payload")
	}
	var req EmbedRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errResponse(ErrCodeBadRequest, "cannot decode embed payload")
	}
	if len(req.Texts) == 0 {
		return errResponse(ErrCodeBadRequest, "texts must be non-empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), connReadTimeout)
	defer cancel()

	vectors, err := s.emb.Embed(ctx, req.Texts)
	if err != nil {
		return errResponse(ErrCodeEmbedFailure, err.Error())
	}

	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		out[i] = v
	}
	return okResponse(EmbedResult{Vectors: out})
}

// Close stops the listener, causing ListenAndServe's Accept loop to
// unwind once in-flight connections finish.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shuttingDown = true
	s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
