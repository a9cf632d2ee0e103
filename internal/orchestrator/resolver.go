package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anstrom/gvmscan/internal/errors"
	"github.com/anstrom/gvmscan/internal/gateway"
	"github.com/anstrom/gvmscan/internal/metrics"
	"github.com/anstrom/gvmscan/internal/normalize"
)

// call performs one engine round trip and normalizes its response. A
// transport error becomes ENGINE_UNREACHABLE at step.
func call(rec metrics.Recorder, step string, fn func() (any, error)) (normalize.Response, error) {
	start := time.Now()
	raw, err := fn()
	if err != nil {
		rec.RecordEngineCall(step, time.Since(start), false)
		return normalize.Response{}, errors.ErrEngineUnreachable(step, err)
	}

	resp := normalize.Normalize(raw)
	rec.RecordEngineCall(step, time.Since(start), resp.OK)
	return resp, nil
}

// TargetResolver finds the engine target for a host, creating one only when
// none exists.
type TargetResolver struct {
	portListID string
	metrics    metrics.Recorder
}

// NewTargetResolver creates a resolver that binds new targets to portListID.
func NewTargetResolver(portListID string, rec metrics.Recorder) *TargetResolver {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &TargetResolver{portListID: portListID, metrics: rec}
}

// Resolve returns the first existing target whose host list contains host as
// an exact, case-sensitive entry. found is false when there is none.
//
// A listing that cannot be fetched or read is a fault, never "not found":
// guessing would provision a duplicate target.
func (r *TargetResolver) Resolve(ctx context.Context, s gateway.Session, host string) (Target, bool, error) {
	resp, err := call(r.metrics, errors.StepResolveTarget, func() (any, error) {
		return s.ListTargets(ctx)
	})
	if err != nil {
		return Target{}, false, err
	}
	if !resp.OK {
		return Target{}, false, errors.ErrResolutionFailed(errors.StepResolveTarget, resp.Diagnostic())
	}

	for _, el := range resp.ElementsByTag("target") {
		hosts := splitHosts(el.Field("hosts"))
		if !containsHost(hosts, host) {
			continue
		}
		if el.ID == "" {
			return Target{}, false, errors.ErrResolutionFailed(errors.StepResolveTarget,
				fmt.Sprintf("target listing entry for %s has no id", host)).WithTarget(host)
		}
		return Target{ID: el.ID, Hosts: hosts}, true, nil
	}

	return Target{}, false, nil
}

// Create provisions a new target for host.
func (r *TargetResolver) Create(ctx context.Context, s gateway.Session, host string) (Target, error) {
	resp, err := call(r.metrics, errors.StepCreateTarget, func() (any, error) {
		return s.CreateTarget(ctx, "target_"+host, []string{host}, r.portListID, "Target for "+host)
	})
	if err != nil {
		return Target{}, err
	}
	if !resp.OK {
		return Target{}, errors.ErrUnexpected(errors.StepCreateTarget, resp.Diagnostic())
	}
	if !resp.HasID() {
		return Target{}, errors.ErrCreationAckWithoutID(errors.StepCreateTarget, resp.StatusText)
	}

	return Target{ID: resp.ID, Hosts: []string{host}}, nil
}

// ResolveOrCreate reuses an existing target for host or creates one.
// created reports which of the two happened.
func (r *TargetResolver) ResolveOrCreate(ctx context.Context, s gateway.Session, host string) (target Target, created bool, err error) {
	target, found, err := r.Resolve(ctx, s, host)
	if err != nil {
		return Target{}, false, err
	}
	if found {
		r.metrics.IncrementTargetResolutions(metrics.OutcomeReused)
		return target, false, nil
	}

	target, err = r.Create(ctx, s, host)
	if err != nil {
		return Target{}, false, err
	}
	r.metrics.IncrementTargetResolutions(metrics.OutcomeCreated)
	return target, true, nil
}

func splitHosts(field string) []string {
	var hosts []string
	for _, h := range strings.Split(field, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

func containsHost(hosts []string, host string) bool {
	for _, h := range hosts {
		if h == host {
			return true
		}
	}
	return false
}

// ScannerResolver picks the scanner new tasks run on.
type ScannerResolver struct {
	prefix  string
	metrics metrics.Recorder
}

// NewScannerResolver creates a resolver preferring scanners whose name
// starts with prefix.
func NewScannerResolver(prefix string, rec metrics.Recorder) *ScannerResolver {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &ScannerResolver{prefix: strings.ToLower(prefix), metrics: rec}
}

// Resolve returns the first scanner whose name starts with the prefix,
// ignoring case, or else the first scanner listed.
func (r *ScannerResolver) Resolve(ctx context.Context, s gateway.Session) (Scanner, error) {
	resp, err := call(r.metrics, errors.StepResolveScanner, func() (any, error) {
		return s.ListScanners(ctx)
	})
	if err != nil {
		return Scanner{}, err
	}
	if !resp.OK {
		return Scanner{}, errors.ErrResolutionFailed(errors.StepResolveScanner, resp.Diagnostic())
	}

	var scanners []Scanner
	for _, el := range resp.ElementsByTag("scanner") {
		if el.ID == "" {
			continue
		}
		scanners = append(scanners, Scanner{ID: el.ID, Name: el.Field("name")})
	}
	if len(scanners) == 0 {
		return Scanner{}, errors.ErrNoScanner()
	}

	if r.prefix != "" {
		for _, sc := range scanners {
			if strings.HasPrefix(strings.ToLower(sc.Name), r.prefix) {
				return sc, nil
			}
		}
	}
	return scanners[0], nil
}
