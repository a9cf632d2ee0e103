package gmp

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/gvmscan/internal/config"
)

// fakeEngine answers each command read from conn with the next reply.
// Received commands are sent on the returned channel.
func fakeEngine(t *testing.T, conn net.Conn, replies ...string) <-chan *etree.Element {
	t.Helper()
	commands := make(chan *etree.Element, len(replies))
	go func() {
		defer close(commands)
		for _, reply := range replies {
			raw, err := readResponse(conn)
			if err != nil {
				return
			}
			doc := etree.NewDocument()
			if err := doc.ReadFromBytes(raw); err != nil {
				return
			}
			commands <- doc.Root()
			if reply == "" {
				continue
			}
			if _, err := conn.Write([]byte(reply)); err != nil {
				return
			}
		}
	}()
	return commands
}

func newPipeSession(t *testing.T, parse bool) (*Session, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return NewSession(client, parse, nil), server
}

func TestSessionCommands(t *testing.T) {
	session, server := newPipeSession(t, false)
	commands := fakeEngine(t, server,
		`<authenticate_response status="200" status_text="OK"><role>Admin</role></authenticate_response>`,
		`<create_target_response status="201" status_text="OK, resource created" id="t-1"/>`,
		`<create_task_response status="201" status_text="OK, resource created" id="task-1"/>`,
		`<get_reports_response status="200" status_text="OK"></get_reports_response>`,
	)
	ctx := context.Background()

	resp, err := session.Authenticate(ctx, "admin", "secret")
	require.NoError(t, err)
	assert.Contains(t, resp, `status="200"`)
	cmd := <-commands
	assert.Equal(t, "authenticate", cmd.Tag)
	assert.Equal(t, "admin", cmd.FindElement("credentials/username").Text())
	assert.Equal(t, "secret", cmd.FindElement("credentials/password").Text())

	resp, err = session.CreateTarget(ctx, "target_10.0.0.5", []string{"10.0.0.5"}, config.DefaultPortListID, "Target for 10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, `<create_target_response status="201" status_text="OK, resource created" id="t-1"/>`, resp)
	cmd = <-commands
	assert.Equal(t, "create_target", cmd.Tag)
	assert.Equal(t, "10.0.0.5", cmd.FindElement("hosts").Text())
	assert.Equal(t, config.DefaultPortListID, cmd.FindElement("port_list").SelectAttrValue("id", ""))
	assert.Equal(t, "Target for 10.0.0.5", cmd.FindElement("comment").Text())

	_, err = session.CreateTask(ctx, "scan_10.0.0.5_1", "cfg", "t-1", "s-1", "")
	require.NoError(t, err)
	cmd = <-commands
	assert.Equal(t, "create_task", cmd.Tag)
	assert.Equal(t, "cfg", cmd.FindElement("config").SelectAttrValue("id", ""))
	assert.Equal(t, "t-1", cmd.FindElement("target").SelectAttrValue("id", ""))
	assert.Equal(t, "s-1", cmd.FindElement("scanner").SelectAttrValue("id", ""))
	assert.Nil(t, cmd.FindElement("comment"))

	_, err = session.GetReports(ctx, "task-1")
	require.NoError(t, err)
	cmd = <-commands
	assert.Equal(t, "get_reports", cmd.Tag)
	assert.Contains(t, cmd.SelectAttrValue("filter", ""), "task_id=task-1")
}

func TestSessionListingsAreUnpaged(t *testing.T) {
	session, server := newPipeSession(t, false)
	commands := fakeEngine(t, server,
		`<get_targets_response status="200" status_text="OK"/>`,
		`<get_scanners_response status="200" status_text="OK"/>`,
	)
	ctx := context.Background()

	_, err := session.ListTargets(ctx)
	require.NoError(t, err)
	cmd := <-commands
	assert.Equal(t, "get_targets", cmd.Tag)
	assert.Equal(t, "rows=-1", cmd.SelectAttrValue("filter", ""))

	_, err = session.ListScanners(ctx)
	require.NoError(t, err)
	cmd = <-commands
	assert.Equal(t, "get_scanners", cmd.Tag)
	assert.Equal(t, "rows=-1", cmd.SelectAttrValue("filter", ""))
}

func TestSessionParsedResponses(t *testing.T) {
	session, server := newPipeSession(t, true)
	fakeEngine(t, server,
		`<get_tasks_response status="200" status_text="OK"><task id="task-1"><status>Done</status></task></get_tasks_response>`,
	)

	resp, err := session.GetTask(context.Background(), "task-1")
	require.NoError(t, err)

	root, ok := resp.(*etree.Element)
	require.True(t, ok, "expected parsed element, got %T", resp)
	assert.Equal(t, "get_tasks_response", root.Tag)
	assert.Equal(t, "Done", root.FindElement("task/status").Text())
}

func TestSessionMalformedResponse(t *testing.T) {
	session, server := newPipeSession(t, true)
	commands := fakeEngine(t, server, `<start_task_response status="202" id="r-1"><<`)

	resp, err := session.StartTask(context.Background(), "task-1")
	require.NoError(t, err)
	text, ok := resp.(string)
	require.True(t, ok, "malformed reply should be returned as text, got %T", resp)
	assert.Contains(t, text, `id="r-1"`)
	assert.Equal(t, "task-1", (<-commands).SelectAttrValue("task_id", ""))
}

func TestSessionDeadline(t *testing.T) {
	session, server := newPipeSession(t, false)
	// The engine reads the command but never answers.
	fakeEngine(t, server, "")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := session.StopTask(ctx, "task-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "expected deadline error, got %v", err)
}

func TestSessionCancelledContext(t *testing.T) {
	session, _ := newPipeSession(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := session.GetVersion(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSessionConnectionClosed(t *testing.T) {
	session, server := newPipeSession(t, false)
	go func() {
		buf := make([]byte, 512)
		_, _ = server.Read(buf)
		server.Close()
	}()

	_, err := session.ListScanners(context.Background())
	assert.Error(t, err)
}

func TestReadResponse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"self closing", `<get_version_response status="200"/>`, `<get_version_response status="200"/>`},
		{"nested", `<a><b><c/></b></a>`, `<a><b><c/></b></a>`},
		{"declaration", `<?xml version="1.0"?><a x="1"></a>`, `<?xml version="1.0"?><a x="1"></a>`},
		{"trailing data ignored", `<a/>  `, `<a/>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readResponse(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestNewDialer(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		d, err := NewDialer(config.Default(), nil)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:9390", d.addr)
		assert.True(t, d.tlsConfig.InsecureSkipVerify)
	})

	t.Run("missing ca file", func(t *testing.T) {
		cfg := config.Default()
		cfg.Engine.CAFile = filepath.Join(t.TempDir(), "ca.pem")
		_, err := NewDialer(cfg, nil)
		assert.Error(t, err)
	})

	t.Run("ca file without certificates", func(t *testing.T) {
		cfg := config.Default()
		cfg.Engine.CAFile = filepath.Join(t.TempDir(), "ca.pem")
		require.NoError(t, os.WriteFile(cfg.Engine.CAFile, []byte("not a certificate"), 0600))
		_, err := NewDialer(cfg, nil)
		assert.Error(t, err)
	})
}

func TestDialUnreachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().(*net.TCPAddr)
	listener.Close()

	cfg := config.Default()
	cfg.Engine.Port = addr.Port
	cfg.Engine.DialTimeout = time.Second
	d, err := NewDialer(cfg, nil)
	require.NoError(t, err)

	_, err = d.Dial(context.Background())
	assert.Error(t, err)
}
