// Package relay delivers one JSON-RPC request to the first healthy backend in a static,
// ordered candidate list.
//
// Method variants form the outer loop and candidates the inner loop, so an enhanced method is
// tried against every candidate before its legacy alternate is tried against any of them.
// Attempts are strictly sequential and each carries its own timeout. A structurally valid
// answer ends the loop, including one whose error member is populated: the backend understood
// the request and is authoritative about it.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/DragonSecurity/podrelay/pkg/proto"
	"github.com/DragonSecurity/podrelay/pkg/util"
)

const (
	DefaultAttemptTimeout = 10 * time.Second
	DefaultMaxDetails     = 5

	EnhancedPodsMethod = "get-pods-with-stats"
	LegacyPodsMethod   = "get-pods"
)

var ErrNoCandidates = errors.New("relay: no candidates configured")

// Fallback lists alternate method names tried, in order, after Method has failed everywhere.
type Fallback struct {
	Method     string
	Alternates []string
}

// DefaultFallbacks covers backends that predate the stats-augmented pod listing.
func DefaultFallbacks() []Fallback {
	return []Fallback{{Method: EnhancedPodsMethod, Alternates: []string{LegacyPodsMethod}}}
}

type Config struct {
	Candidates     []string
	AttemptTimeout time.Duration
	// Budget caps a whole Do call; zero leaves it bounded only by variants x candidates x timeout.
	Budget     time.Duration
	MaxDetails int
	Fallbacks  []Fallback
}

// Observer receives every attempt and every result. Implementations must be goroutine-safe.
type Observer interface {
	ObserveAttempt(Attempt)
	ObserveResult(*Result)
}

type nopObserver struct{}

func (nopObserver) ObserveAttempt(Attempt) {}
func (nopObserver) ObserveResult(*Result)  {}

type Option func(*Relay)

func WithObserver(o Observer) Option {
	return func(r *Relay) {
		if o != nil {
			r.obs = o
		}
	}
}

func WithLogger(l *util.Logger) Option {
	return func(r *Relay) {
		if l != nil {
			r.log = l
		}
	}
}

// Relay holds only immutable configuration and is safe for concurrent use.
type Relay struct {
	cfg    Config
	caller Caller
	obs    Observer
	log    *util.Logger
}

func New(cfg Config, caller Caller, opts ...Option) (*Relay, error) {
	if len(cfg.Candidates) == 0 {
		return nil, ErrNoCandidates
	}
	if caller == nil {
		return nil, errors.New("relay: nil caller")
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.MaxDetails <= 0 {
		cfg.MaxDetails = DefaultMaxDetails
	}
	cfg.Candidates = append([]string(nil), cfg.Candidates...)
	fbs := make([]Fallback, 0, len(cfg.Fallbacks))
	for _, fb := range cfg.Fallbacks {
		fbs = append(fbs, Fallback{Method: fb.Method, Alternates: append([]string(nil), fb.Alternates...)})
	}
	cfg.Fallbacks = fbs

	r := &Relay{cfg: cfg, caller: caller, obs: nopObserver{}, log: util.NewLoggerTo("relay", io.Discard)}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Candidates returns a copy of the configured order.
func (r *Relay) Candidates() []string {
	return append([]string(nil), r.cfg.Candidates...)
}

func (r *Relay) AttemptTimeout() time.Duration { return r.cfg.AttemptTimeout }

// Variants returns the method names tried for method, in order.
func (r *Relay) Variants(method string) []string {
	out := []string{method}
	for _, fb := range r.cfg.Fallbacks {
		if fb.Method != method {
			continue
		}
		for _, alt := range fb.Alternates {
			if alt != "" && !slices.Contains(out, alt) {
				out = append(out, alt)
			}
		}
	}
	return out
}

// Do never returns a nil Result and never reports delivery failures as Go errors.
func (r *Relay) Do(ctx context.Context, req *proto.Request) *Result {
	if err := req.Validate(); err != nil {
		return r.reject(req, err)
	}
	if r.cfg.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Budget)
		defer cancel()
	}

	variants := r.Variants(req.Method)
	res := &Result{Methods: variants}
	log := r.log.With("id", string(req.CallID()))

loop:
	for _, method := range variants {
		body, err := req.WithMethod(method)
		if err != nil {
			return r.reject(req, err)
		}
		log.Debugf("trying method %s against %d candidates", method, len(r.cfg.Candidates))
		for _, endpoint := range r.cfg.Candidates {
			if err := ctx.Err(); err != nil {
				res.Err = err
				break loop
			}
			a, answer := r.attempt(ctx, endpoint, method, body)
			res.Attempts = append(res.Attempts, a)
			if a.Failed() {
				log.Warnf("%s (%s) failed after %s: %s", endpoint, method, a.Duration, a.Reason)
				continue
			}
			stamped, err := proto.StampID(answer, req.CallID())
			if err != nil {
				stamped = answer
			}
			res.Status = StatusDelivered
			res.Body = stamped
			res.Endpoint = endpoint
			res.Method = method
			log.Infof("delivered by %s (%s) in %s after %d attempt(s)", endpoint, method, a.Duration, len(res.Attempts))
			r.obs.ObserveResult(res)
			return res
		}
	}

	r.exhaust(req, res)
	log.Errorf("exhausted %d attempt(s) across %d candidates: %s", len(res.Attempts), len(r.cfg.Candidates), lastReason(res))
	r.obs.ObserveResult(res)
	return res
}

func (r *Relay) attempt(ctx context.Context, endpoint, method string, body []byte) (Attempt, []byte) {
	actx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
	defer cancel()

	start := time.Now()
	out := r.caller.Call(actx, endpoint, body)
	a := Attempt{
		Endpoint: endpoint,
		Method:   method,
		Kind:     out.Kind,
		Status:   out.Status,
		Reason:   out.Reason,
		Duration: time.Since(start),
	}
	switch {
	case out.Kind == KindTimedOut:
		a.Reason = fmt.Sprintf("timeout (%s)", r.cfg.AttemptTimeout)
	case out.Kind == KindSuccess && !proto.IsStructurallyValid(out.Body):
		a.Kind = KindInvalidResponse
		a.Reason = "invalid response structure"
	}
	if a.Failed() && a.Reason == "" {
		a.Reason = a.Kind.String()
	}
	r.obs.ObserveAttempt(a)
	if a.Failed() {
		return a, nil
	}
	return a, out.Body
}

func (r *Relay) reject(req *proto.Request, err error) *Result {
	res := &Result{
		Status: StatusRejected,
		Body:   proto.ErrorResponse(req.CallID(), proto.CodeInvalidRequest, "Invalid Request", nil),
		Err:    err,
	}
	r.obs.ObserveResult(res)
	return res
}

func (r *Relay) exhaust(req *proto.Request, res *Result) {
	n := len(res.Attempts)
	if n > r.cfg.MaxDetails {
		n = r.cfg.MaxDetails
	}
	details := make([]string, 0, n)
	for _, a := range res.Attempts[:n] {
		details = append(details, a.Detail())
	}
	data := proto.ExhaustedData{
		Endpoints: r.Candidates(),
		Methods:   append([]string(nil), res.Methods...),
		Attempts:  len(res.Attempts),
		Details:   details,
	}
	msg := fmt.Sprintf("All %d endpoints failed. Last error: %s", len(r.cfg.Candidates), lastReason(res))
	res.Status = StatusExhausted
	res.Body = proto.ErrorResponse(req.CallID(), proto.CodeInternalError, msg, data)
}

func lastReason(res *Result) string {
	if res.Err != nil && errors.Is(res.Err, context.DeadlineExceeded) {
		return "relay budget exceeded"
	}
	if res.Err != nil {
		return res.Err.Error()
	}
	if n := len(res.Attempts); n > 0 {
		return res.Attempts[n-1].Reason
	}
	return "unknown"
}
