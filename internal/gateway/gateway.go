// Package gateway defines the contract between the scan orchestrator and a
// scan engine's management protocol client.
//
// Responses are deliberately untyped: depending on the client and engine
// version a call may yield XML text, a parsed element tree, a mapping, a
// listing or a bare status code. Callers pass every response through
// normalize.Normalize before reading it. A non-nil error always means the
// request did not complete at the transport level.
package gateway

//go:generate mockgen -destination=mocks/mock_gateway.go -package=mocks github.com/anstrom/gvmscan/internal/gateway Session,Dialer

import "context"

// Session is one authenticated conversation with the scan engine. A Session
// is not safe for concurrent use and must be closed on every exit path.
type Session interface {
	Authenticate(ctx context.Context, username, password string) (any, error)
	GetVersion(ctx context.Context) (any, error)

	ListTargets(ctx context.Context) (any, error)
	CreateTarget(ctx context.Context, name string, hosts []string, portListID, comment string) (any, error)
	ListScanners(ctx context.Context) (any, error)

	CreateTask(ctx context.Context, name, configID, targetID, scannerID, comment string) (any, error)
	StartTask(ctx context.Context, taskID string) (any, error)
	StopTask(ctx context.Context, taskID string) (any, error)
	GetTask(ctx context.Context, taskID string) (any, error)
	GetReports(ctx context.Context, taskID string) (any, error)

	Close() error
}

// Dialer opens new, unauthenticated sessions.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Session, error)

// Dial calls f(ctx).
func (f DialerFunc) Dial(ctx context.Context) (Session, error) {
	return f(ctx)
}
