package browser

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/Daw588/lavender/internal/errors"
	"github.com/Daw588/lavender/internal/logging"
)

type targetInfo struct {
	TargetID string `json:"targetId"`
	Type     string `json:"type"`
	URL      string `json:"url"`
}

// attachPage finds the app page among the browser targets and attaches a
// flattened session to it. Chrome may list the page shortly after the
// endpoint comes up, so the lookup is retried until ctx expires.
func attachPage(ctx context.Context, conn *Conn, pageURL string) (string, string, error) {
	if err := conn.Call(ctx, "", "Target.setDiscoverTargets", map[string]interface{}{"discover": true}, nil); err != nil {
		return "", "", err
	}

	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()

	var targetID string
	for targetID == "" {
		var reply struct {
			TargetInfos []targetInfo `json:"targetInfos"`
		}
		if err := conn.Call(ctx, "", "Target.getTargets", nil, &reply); err != nil {
			if ctx.Err() != nil {
				return "", "", pageMissing(ctx)
			}
			return "", "", err
		}
		targetID = pickPage(reply.TargetInfos, pageURL)
		if targetID != "" {
			break
		}

		select {
		case <-ctx.Done():
			return "", "", pageMissing(ctx)
		case <-ticker.C:
		}
	}

	var attached struct {
		SessionID string `json:"sessionId"`
	}
	params := map[string]interface{}{"targetId": targetID, "flatten": true}
	if err := conn.Call(ctx, "", "Target.attachToTarget", params, &attached); err != nil {
		return "", "", err
	}
	if attached.SessionID == "" {
		return "", "", errors.NewSessionError(errors.ErrCodeBrowserProtocol, "attach returned no session", nil)
	}

	return targetID, attached.SessionID, nil
}

func pageMissing(ctx context.Context) error {
	return errors.NewSessionError(errors.ErrCodeBrowserLaunch, "preview page did not appear", ctx.Err())
}

// pickPage prefers the page showing pageURL and falls back to the first page.
func pickPage(targets []targetInfo, pageURL string) string {
	first := ""
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		if t.URL == pageURL {
			return t.TargetID
		}
		if first == "" {
			first = t.TargetID
		}
	}
	return first
}

// process is the subset of os.Process used by Session.
type process interface {
	Kill() error
}

type sessionConfig struct {
	conn         *Conn
	targetID     string
	sessionID    string
	process      process
	exited       <-chan struct{}
	profileDir   string
	closeTimeout time.Duration
	logger       logging.Logger
}

// Session is an open preview window. It implements session.Browser.
type Session struct {
	cfg sessionConfig

	disconnectOnce sync.Once
	disconnected   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func newSession(cfg sessionConfig) *Session {
	if cfg.closeTimeout <= 0 {
		cfg.closeTimeout = DefaultCloseTimeout
	}

	s := &Session{
		cfg:          cfg,
		disconnected: make(chan struct{}),
	}

	cfg.conn.OnEvent(func(method, sessionID string, params json.RawMessage) {
		switch method {
		case "Target.targetDestroyed", "Target.targetCrashed":
			var p struct {
				TargetID string `json:"targetId"`
			}
			if json.Unmarshal(params, &p) == nil && p.TargetID == cfg.targetID {
				s.markDisconnected("page closed")
			}
		case "Target.detachedFromTarget":
			var p struct {
				SessionID string `json:"sessionId"`
			}
			if json.Unmarshal(params, &p) == nil && p.SessionID == cfg.sessionID {
				s.markDisconnected("page detached")
			}
		}
	})

	go s.monitor()

	return s
}

// monitor watches the connection and the process. A nil exited channel
// never fires.
func (s *Session) monitor() {
	select {
	case <-s.cfg.conn.Closed():
		s.markDisconnected("devtools connection closed")
	case <-s.cfg.exited:
		s.markDisconnected("browser process exited")
	case <-s.disconnected:
	}
}

func (s *Session) markDisconnected(reason string) {
	s.disconnectOnce.Do(func() {
		s.cfg.logger.Debug(context.Background(), "Browser disconnected", "reason", reason)
		close(s.disconnected)
	})
}

// Disconnected is closed when the window, the connection or the process goes
// away.
func (s *Session) Disconnected() <-chan struct{} {
	return s.disconnected
}

// Reload re-navigates the attached page in place.
func (s *Session) Reload(ctx context.Context) error {
	select {
	case <-s.disconnected:
		return errors.NewSessionError(errors.ErrCodeBrowserProtocol, "browser is disconnected", nil)
	default:
	}
	return s.cfg.conn.Call(ctx, s.cfg.sessionID, "Page.reload", map[string]interface{}{"ignoreCache": true}, nil)
}

// Close asks the browser to exit, kills it if it lingers and removes the
// temporary profile. Only the first call does any work.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.close()
	})
	return s.closeErr
}

func (s *Session) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.closeTimeout)
	defer cancel()

	select {
	case <-s.cfg.conn.Closed():
	default:
		if err := s.cfg.conn.Call(ctx, "", "Browser.close", nil, nil); err != nil {
			s.cfg.logger.Debug(ctx, "Browser.close failed", "error", err.Error())
		}
	}
	_ = s.cfg.conn.Close()

	if s.cfg.process != nil {
		select {
		case <-s.cfg.exited:
		case <-ctx.Done():
			if err := s.cfg.process.Kill(); err != nil {
				s.cfg.logger.Debug(context.Background(), "Kill failed", "error", err.Error())
			}
			if s.cfg.exited != nil {
				<-s.cfg.exited
			}
		}
	}

	s.markDisconnected("closed")

	if s.cfg.profileDir != "" {
		if err := os.RemoveAll(s.cfg.profileDir); err != nil {
			return errors.NewIOError(errors.ErrCodeBrowserLaunch, "removing browser profile", err)
		}
	}
	return nil
}
