package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lojinha-app/storefront/internal/logging"
	log "github.com/sirupsen/logrus"
)

const successPage = `<!DOCTYPE html>
<html lang="pt">
<head><meta charset="utf-8"><title>Lojinha</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 4em">
<h1>Login efetuado</h1>
<p>Você já pode fechar esta janela e voltar ao terminal.</p>
</body>
</html>`

// CallbackResult contains the parameters of the hosted sign-in redirect.
type CallbackResult struct {
	Code  string
	State string
	Error string
}

// CallbackServer receives the authorization code of the hosted sign-in page.
type CallbackServer struct {
	port       int
	engine     *gin.Engine
	server     *http.Server
	listener   net.Listener
	resultChan chan *CallbackResult
	errorChan  chan error
	mu         sync.Mutex
	running    bool
}

// NewCallbackServer creates a callback server for the given local port.
// Port 0 picks a free port, see Port.
func NewCallbackServer(port int) *CallbackServer {
	s := &CallbackServer{
		port:       port,
		resultChan: make(chan *CallbackResult, 1),
		errorChan:  make(chan error, 1),
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(logging.GinLogrusLogger(), logging.GinLogrusRecovery())
	engine.GET("/callback", s.handleCallback)
	engine.GET("/success", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(successPage))
	})
	s.engine = engine
	return s
}

// Handler exposes the routes of the server.
func (s *CallbackServer) Handler() http.Handler { return s.engine }

// Start binds the port and serves in the background.
func (s *CallbackServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("callback server is already running")
	}
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.port))
	if err != nil {
		return fmt.Errorf("port %d is not available: %w", s.port, err)
	}
	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port
	s.server = &http.Server{
		Handler:      s.engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.running = true

	go func() {
		if errServe := s.server.Serve(listener); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			s.sendError(fmt.Errorf("callback server failed: %w", errServe))
		}
	}()
	return nil
}

// Port returns the bound port.
func (s *CallbackServer) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Stop shuts the server down.
func (s *CallbackServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.server == nil {
		return nil
	}
	log.Debug("stopping callback server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := s.server.Shutdown(shutdownCtx)
	s.running = false
	s.server = nil
	return err
}

// WaitForCallback blocks until the redirect arrives, the timeout elapses or ctx ends.
func (s *CallbackServer) WaitForCallback(ctx context.Context, timeout time.Duration) (*CallbackResult, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case result := <-s.resultChan:
		return result, nil
	case err := <-s.errorChan:
		return nil, err
	case <-timer.C:
		return nil, fmt.Errorf("timeout waiting for sign-in callback")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *CallbackServer) handleCallback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	if errParam := c.Query("error"); errParam != "" {
		log.Errorf("sign-in error received: %s", errParam)
		s.sendResult(&CallbackResult{Error: errParam})
		c.String(http.StatusBadRequest, "sign-in error: %s", errParam)
		return
	}
	if code == "" {
		s.sendResult(&CallbackResult{Error: "no_code"})
		c.String(http.StatusBadRequest, "no authorization code received")
		return
	}
	if state == "" {
		s.sendResult(&CallbackResult{Error: "no_state"})
		c.String(http.StatusBadRequest, "no state parameter received")
		return
	}
	s.sendResult(&CallbackResult{Code: code, State: state})
	c.Redirect(http.StatusFound, "/success")
}

func (s *CallbackServer) sendResult(result *CallbackResult) {
	select {
	case s.resultChan <- result:
	default:
		log.Warn("callback result channel is full, dropping result")
	}
}

func (s *CallbackServer) sendError(err error) {
	select {
	case s.errorChan <- err:
	default:
	}
}
