// Package gmp implements gateway.Session over the Greenbone Management
// Protocol: one XML command per round trip on a TLS connection.
package gmp

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/anstrom/gvmscan/internal/config"
	"github.com/anstrom/gvmscan/internal/gateway"
	"github.com/anstrom/gvmscan/internal/logging"
)

// Dialer opens TLS sessions to a GMP endpoint.
type Dialer struct {
	addr           string
	tlsConfig      *tls.Config
	dialTimeout    time.Duration
	parseResponses bool
	logger         *logging.Logger
}

// NewDialer builds a Dialer from the engine section of the configuration.
func NewDialer(cfg *config.Config, logger *logging.Logger) (*Dialer, error) {
	tlsConfig := &tls.Config{
		ServerName:         cfg.Engine.Host,
		InsecureSkipVerify: cfg.Engine.InsecureSkipVerify, //nolint:gosec // GVM ships self-signed certificates
		MinVersion:         tls.VersionTLS12,
	}

	if cfg.Engine.CAFile != "" {
		pem, err := os.ReadFile(cfg.Engine.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read engine CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.Engine.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	if logger == nil {
		logger = logging.Default()
	}

	return &Dialer{
		addr:           cfg.GetEngineAddress(),
		tlsConfig:      tlsConfig,
		dialTimeout:    cfg.Engine.DialTimeout,
		parseResponses: cfg.Engine.ParseResponses,
		logger:         logger.WithComponent("gmp"),
	}, nil
}

// Dial connects to the engine. The returned session is not authenticated.
func (d *Dialer) Dial(ctx context.Context) (gateway.Session, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: d.dialTimeout},
		Config:    d.tlsConfig,
	}

	conn, err := dialer.DialContext(ctx, "tcp", d.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", d.addr, err)
	}

	d.logger.Debug("Engine session opened", "addr", d.addr)
	return NewSession(conn, d.parseResponses, d.logger), nil
}

// Session is a single GMP conversation. It is not safe for concurrent use.
type Session struct {
	conn           net.Conn
	parseResponses bool
	logger         *logging.Logger
}

// NewSession wraps an established connection.
func NewSession(conn net.Conn, parseResponses bool, logger *logging.Logger) *Session {
	if logger == nil {
		logger = logging.NewDiscard()
	}
	return &Session{
		conn:           conn,
		parseResponses: parseResponses,
		logger:         logger,
	}
}

// Authenticate sends the credentials for this session.
func (s *Session) Authenticate(ctx context.Context, username, password string) (any, error) {
	cmd := etree.NewElement("authenticate")
	creds := cmd.CreateElement("credentials")
	creds.CreateElement("username").SetText(username)
	creds.CreateElement("password").SetText(password)
	return s.send(ctx, cmd)
}

// GetVersion returns the protocol version the engine speaks.
func (s *Session) GetVersion(ctx context.Context) (any, error) {
	return s.send(ctx, etree.NewElement("get_version"))
}

// ListTargets returns every target visible to the session user.
func (s *Session) ListTargets(ctx context.Context) (any, error) {
	cmd := etree.NewElement("get_targets")
	cmd.CreateAttr("filter", "rows=-1")
	return s.send(ctx, cmd)
}

// CreateTarget provisions a target over hosts bound to a port list.
func (s *Session) CreateTarget(ctx context.Context, name string, hosts []string, portListID, comment string) (any, error) {
	cmd := etree.NewElement("create_target")
	cmd.CreateElement("name").SetText(name)
	cmd.CreateElement("hosts").SetText(strings.Join(hosts, ","))
	cmd.CreateElement("port_list").CreateAttr("id", portListID)
	if comment != "" {
		cmd.CreateElement("comment").SetText(comment)
	}
	return s.send(ctx, cmd)
}

// ListScanners returns every scanner registered with the engine.
func (s *Session) ListScanners(ctx context.Context) (any, error) {
	cmd := etree.NewElement("get_scanners")
	cmd.CreateAttr("filter", "rows=-1")
	return s.send(ctx, cmd)
}

// CreateTask creates a task without starting it.
func (s *Session) CreateTask(ctx context.Context, name, configID, targetID, scannerID, comment string) (any, error) {
	cmd := etree.NewElement("create_task")
	cmd.CreateElement("name").SetText(name)
	if comment != "" {
		cmd.CreateElement("comment").SetText(comment)
	}
	cmd.CreateElement("config").CreateAttr("id", configID)
	cmd.CreateElement("target").CreateAttr("id", targetID)
	cmd.CreateElement("scanner").CreateAttr("id", scannerID)
	return s.send(ctx, cmd)
}

// StartTask launches a task. The engine answers with the new report id.
func (s *Session) StartTask(ctx context.Context, taskID string) (any, error) {
	return s.send(ctx, taskCommand("start_task", taskID))
}

// StopTask stops a running task.
func (s *Session) StopTask(ctx context.Context, taskID string) (any, error) {
	return s.send(ctx, taskCommand("stop_task", taskID))
}

// GetTask returns one task with its current status.
func (s *Session) GetTask(ctx context.Context, taskID string) (any, error) {
	return s.send(ctx, taskCommand("get_tasks", taskID))
}

// GetReports returns the full reports of a task.
func (s *Session) GetReports(ctx context.Context, taskID string) (any, error) {
	cmd := etree.NewElement("get_reports")
	cmd.CreateAttr("filter", "task_id="+taskID+" rows=-1")
	cmd.CreateAttr("details", "1")
	cmd.CreateAttr("ignore_pagination", "1")
	return s.send(ctx, cmd)
}

// Close ends the session. GMP has no logout command; closing the
// connection discards the authentication.
func (s *Session) Close() error {
	return s.conn.Close()
}

func taskCommand(name, taskID string) *etree.Element {
	cmd := etree.NewElement(name)
	cmd.CreateAttr("task_id", taskID)
	return cmd
}

func (s *Session) send(ctx context.Context, cmd *etree.Element) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The zero deadline clears the one left by a previous command.
	deadline, _ := ctx.Deadline()
	if err := s.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	// Unblock a pending read when the context is cancelled early.
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetDeadline(time.Now())
	})
	defer stop()

	doc := etree.NewDocument()
	doc.SetRoot(cmd)
	start := time.Now()
	if _, err := doc.WriteTo(s.conn); err != nil {
		return nil, contextError(ctx, fmt.Errorf("failed to send %s: %w", cmd.Tag, err))
	}

	raw, err := readResponse(s.conn)
	var syntaxErr *xml.SyntaxError
	if errors.As(err, &syntaxErr) && len(raw) > 0 {
		// Hand malformed text to the caller; it may still carry an id.
		s.logger.Warn("Malformed engine response", "command", cmd.Tag, "error", err)
		return string(raw), nil
	}
	if err != nil {
		return nil, contextError(ctx, fmt.Errorf("failed to read %s response: %w", cmd.Tag, err))
	}

	s.logger.Debug("Engine command completed",
		"command", cmd.Tag,
		"bytes", len(raw),
		"duration", time.Since(start))

	if !s.parseResponses {
		return string(raw), nil
	}

	// A malformed reply is passed on as text; the caller still gets a chance
	// to recover an id from it.
	parsed := etree.NewDocument()
	if err := parsed.ReadFromBytes(raw); err != nil || parsed.Root() == nil {
		return string(raw), nil
	}
	return parsed.Root(), nil
}

// readResponse consumes exactly one top-level XML element from r. The engine
// keeps the connection open between commands, so reading to EOF is not an
// option. On a syntax error the bytes read so far are returned with it.
func readResponse(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	dec := xml.NewDecoder(io.TeeReader(r, &buf))
	depth := 0
	for {
		tok, err := dec.RawToken()
		var syntaxErr *xml.SyntaxError
		if errors.As(err, &syntaxErr) {
			return buf.Bytes(), err
		}
		if err != nil {
			return nil, err
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
			if depth == 0 {
				return buf.Bytes()[:dec.InputOffset()], nil
			}
		}
	}
}

func contextError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	if _, ok := ctx.Deadline(); ok && errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	return err
}
