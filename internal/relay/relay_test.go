package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/DragonSecurity/podrelay/pkg/proto"
)

type call struct {
	endpoint string
	method   string
}

// scriptedCaller answers from a function and records every call in order.
type scriptedCaller struct {
	mu     sync.Mutex
	calls  []call
	script func(ctx context.Context, endpoint, method string) Outcome
}

func (c *scriptedCaller) Call(ctx context.Context, endpoint string, body []byte) Outcome {
	method := gjson.GetBytes(body, "method").String()
	c.mu.Lock()
	c.calls = append(c.calls, call{endpoint: endpoint, method: method})
	c.mu.Unlock()
	return c.script(ctx, endpoint, method)
}

func (c *scriptedCaller) recorded() []call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]call(nil), c.calls...)
}

func ok(body string) Outcome {
	return Outcome{Kind: KindSuccess, Status: 200, Body: []byte(body)}
}

func refused(endpoint string) Outcome {
	return Outcome{Kind: KindTransportError, Reason: "dial tcp " + endpoint + ": connect: connection refused"}
}

var fourCandidates = []string{
	"http://10.0.0.1:6000/rpc",
	"http://10.0.0.2:6000/rpc",
	"http://10.0.0.3:6000/rpc",
	"http://10.0.0.4:6000/rpc",
}

func newRelay(t *testing.T, cfg Config, c Caller) *Relay {
	t.Helper()
	if cfg.Candidates == nil {
		cfg.Candidates = fourCandidates
	}
	if cfg.Fallbacks == nil {
		cfg.Fallbacks = DefaultFallbacks()
	}
	r, err := New(cfg, c)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func podsRequest(id string) *proto.Request {
	return &proto.Request{JSONRPC: "2.0", Method: EnhancedPodsMethod, Params: json.RawMessage(`[]`), ID: json.RawMessage(id)}
}

func TestFirstCandidateDelivers(t *testing.T) {
	c := &scriptedCaller{script: func(ctx context.Context, endpoint, method string) Outcome {
		return ok(`{"jsonrpc":"2.0","result":{"total_count":3,"pods":[{},{},{}]},"id":1}`)
	}}
	r := newRelay(t, Config{}, c)

	res := r.Do(context.Background(), podsRequest("7"))
	if res.Status != StatusDelivered {
		t.Fatalf("expect delivered, got %s", res.Status)
	}
	if n := len(c.recorded()); n != 1 {
		t.Fatalf("expect exactly one outbound call, got %d", n)
	}
	doc := gjson.ParseBytes(res.Body)
	if doc.Get("id").Raw != "7" {
		t.Fatalf("expect id 7, got %s", doc.Get("id").Raw)
	}
	if doc.Get("result.total_count").Int() != 3 {
		t.Fatalf("result not forwarded verbatim: %s", res.Body)
	}
	if res.Endpoint != fourCandidates[0] || res.Method != EnhancedPodsMethod {
		t.Fatalf("unexpected delivering pair %s/%s", res.Endpoint, res.Method)
	}
}

func TestTimeoutFailsOverToNextCandidate(t *testing.T) {
	c := &scriptedCaller{script: func(ctx context.Context, endpoint, method string) Outcome {
		if endpoint == fourCandidates[0] {
			return Outcome{Kind: KindTimedOut}
		}
		return ok(`{"jsonrpc":"2.0","result":{"total_count":1,"pods":[]},"id":1}`)
	}}
	r := newRelay(t, Config{AttemptTimeout: time.Second}, c)

	res := r.Do(context.Background(), podsRequest("7"))
	if res.Status != StatusDelivered || res.Endpoint != fourCandidates[1] {
		t.Fatalf("expect delivery by second candidate, got %s from %q", res.Status, res.Endpoint)
	}
	calls := c.recorded()
	if len(calls) != 2 {
		t.Fatalf("expect two outbound calls, got %d", len(calls))
	}
	if len(res.Attempts) != 2 || res.Attempts[0].Kind != KindTimedOut {
		t.Fatalf("expect a recorded timeout then success, got %+v", res.Attempts)
	}
	if res.Attempts[0].Reason != "timeout (1s)" {
		t.Fatalf("unexpected timeout reason %q", res.Attempts[0].Reason)
	}
}

func TestLegacyMethodAfterEnhancedFailsEverywhere(t *testing.T) {
	c := &scriptedCaller{script: func(ctx context.Context, endpoint, method string) Outcome {
		if method == EnhancedPodsMethod {
			return refused(endpoint)
		}
		return ok(`{"jsonrpc":"2.0","result":{"total_count":2,"pods":[]},"id":1}`)
	}}
	r := newRelay(t, Config{}, c)

	res := r.Do(context.Background(), podsRequest("7"))
	if res.Status != StatusDelivered {
		t.Fatalf("expect delivered, got %s", res.Status)
	}
	calls := c.recorded()
	if len(calls) != len(fourCandidates)+1 {
		t.Fatalf("expect %d calls, got %d", len(fourCandidates)+1, len(calls))
	}
	// variant is the outer loop: every enhanced call precedes the first legacy call
	for i, cl := range calls[:len(fourCandidates)] {
		if cl.method != EnhancedPodsMethod || cl.endpoint != fourCandidates[i] {
			t.Fatalf("call %d: expect %s@%s, got %s@%s", i, EnhancedPodsMethod, fourCandidates[i], cl.method, cl.endpoint)
		}
	}
	last := calls[len(calls)-1]
	if last.method != LegacyPodsMethod || last.endpoint != fourCandidates[0] {
		t.Fatalf("expect legacy call against first candidate, got %s@%s", last.method, last.endpoint)
	}
	if res.Method != LegacyPodsMethod {
		t.Fatalf("expect delivery via legacy method, got %s", res.Method)
	}
}

func TestEmptyMethodRejectedWithoutCalls(t *testing.T) {
	c := &scriptedCaller{script: func(ctx context.Context, endpoint, method string) Outcome {
		t.Fatal("no outbound call expected")
		return Outcome{}
	}}
	r := newRelay(t, Config{}, c)

	res := r.Do(context.Background(), &proto.Request{JSONRPC: "2.0", Method: "", ID: json.RawMessage(`"x1"`)})
	if res.Status != StatusRejected {
		t.Fatalf("expect rejected, got %s", res.Status)
	}
	if !errors.Is(res.Err, proto.ErrEmptyMethod) {
		t.Fatalf("expect ErrEmptyMethod, got %v", res.Err)
	}
	doc := gjson.ParseBytes(res.Body)
	if doc.Get("error.code").Int() != proto.CodeInvalidRequest || doc.Get("id").Raw != `"x1"` {
		t.Fatalf("unexpected rejection body %s", res.Body)
	}
}

func TestExhaustionShape(t *testing.T) {
	c := &scriptedCaller{script: func(ctx context.Context, endpoint, method string) Outcome {
		return refused(endpoint)
	}}
	r := newRelay(t, Config{MaxDetails: 3}, c)

	res := r.Do(context.Background(), podsRequest("7"))
	if res.Status != StatusExhausted {
		t.Fatalf("expect exhausted, got %s", res.Status)
	}
	wantCalls := 2 * len(fourCandidates)
	if n := len(c.recorded()); n != wantCalls {
		t.Fatalf("expect %d calls, got %d", wantCalls, n)
	}
	doc := gjson.ParseBytes(res.Body)
	if doc.Get("result").Exists() {
		t.Fatalf("exhaustion must not carry result: %s", res.Body)
	}
	if doc.Get("error.code").Int() != proto.CodeInternalError {
		t.Fatalf("expect -32603, got %s", doc.Get("error.code").Raw)
	}
	if doc.Get("id").Raw != "7" {
		t.Fatalf("expect id echoed, got %s", doc.Get("id").Raw)
	}
	if n := len(doc.Get("error.data.details").Array()); n != 3 {
		t.Fatalf("expect 3 capped details, got %d", n)
	}
	if doc.Get("error.data.attempts").Int() != int64(wantCalls) {
		t.Fatalf("expect attempts=%d, got %s", wantCalls, doc.Get("error.data.attempts").Raw)
	}
	msg := doc.Get("error.message").String()
	if !strings.HasPrefix(msg, fmt.Sprintf("All %d endpoints failed. Last error: ", len(fourCandidates))) {
		t.Fatalf("unexpected message %q", msg)
	}
	first := doc.Get("error.data.details.0").String()
	if first != fourCandidates[0]+" ("+EnhancedPodsMethod+"): dial tcp "+fourCandidates[0]+": connect: connection refused" {
		t.Fatalf("unexpected first detail %q", first)
	}
}

func TestExhaustionWithoutIDEchoesNull(t *testing.T) {
	c := &scriptedCaller{script: func(ctx context.Context, endpoint, method string) Outcome {
		return refused(endpoint)
	}}
	r := newRelay(t, Config{}, c)
	res := r.Do(context.Background(), &proto.Request{Method: "get-version"})
	if got := gjson.GetBytes(res.Body, "id").Raw; got != "null" {
		t.Fatalf("expect null id, got %s", got)
	}
	if n := len(c.recorded()); n != len(fourCandidates) {
		t.Fatalf("method without fallback should try each candidate once, got %d calls", n)
	}
}

func TestCandidateOrderFollowsConfig(t *testing.T) {
	reversed := []string{fourCandidates[3], fourCandidates[2], fourCandidates[1], fourCandidates[0]}
	for _, order := range [][]string{fourCandidates, reversed} {
		c := &scriptedCaller{script: func(ctx context.Context, endpoint, method string) Outcome {
			return refused(endpoint)
		}}
		r := newRelay(t, Config{Candidates: order}, c)
		r.Do(context.Background(), &proto.Request{Method: "get-version"})

		calls := c.recorded()
		for i, cl := range calls {
			if cl.endpoint != order[i] {
				t.Fatalf("call %d: expect %s, got %s", i, order[i], cl.endpoint)
			}
		}
	}
}

func TestStopsAtFirstValidResponse(t *testing.T) {
	c := &scriptedCaller{script: func(ctx context.Context, endpoint, method string) Outcome {
		switch endpoint {
		case fourCandidates[0]:
			return Outcome{Kind: KindTransportError, Status: 502, Reason: "HTTP 502"}
		case fourCandidates[1]:
			return ok(`<html>gateway</html>`)
		default:
			return ok(`{"jsonrpc":"2.0","result":"v0.7.0","id":1}`)
		}
	}}
	r := newRelay(t, Config{}, c)

	res := r.Do(context.Background(), &proto.Request{Method: "get-version", ID: json.RawMessage(`3`)})
	if res.Endpoint != fourCandidates[2] {
		t.Fatalf("expect third candidate to deliver, got %q", res.Endpoint)
	}
	if n := len(c.recorded()); n != 3 {
		t.Fatalf("no candidate after the delivering one may be tried, got %d calls", n)
	}
	if res.Attempts[1].Kind != KindInvalidResponse {
		t.Fatalf("expect invalid structure on second candidate, got %s", res.Attempts[1].Kind)
	}
}

func TestBackendErrorIsDeliveredNotRetried(t *testing.T) {
	c := &scriptedCaller{script: func(ctx context.Context, endpoint, method string) Outcome {
		return ok(`{"jsonrpc":"2.0","error":{"code":-32601,"message":"Method not found"},"id":null}`)
	}}
	r := newRelay(t, Config{}, c)

	res := r.Do(context.Background(), podsRequest(`"abc"`))
	if res.Status != StatusDelivered {
		t.Fatalf("backend error is a delivery, got %s", res.Status)
	}
	if n := len(c.recorded()); n != 1 {
		t.Fatalf("backend error must not be retried, got %d calls", n)
	}
	doc := gjson.ParseBytes(res.Body)
	if doc.Get("error.code").Int() != -32601 || doc.Get("id").Raw != `"abc"` {
		t.Fatalf("unexpected body %s", res.Body)
	}
}

func TestExhaustionIsRepeatable(t *testing.T) {
	c := &scriptedCaller{script: func(ctx context.Context, endpoint, method string) Outcome {
		return refused(endpoint)
	}}
	r := newRelay(t, Config{}, c)
	req := podsRequest("11")

	a := r.Do(context.Background(), req)
	b := r.Do(context.Background(), req)
	if !bytes.Equal(a.Body, b.Body) {
		t.Fatalf("expect identical exhaustion bodies:\n%s\n%s", a.Body, b.Body)
	}
}

func TestBudgetStopsTheLoop(t *testing.T) {
	c := &scriptedCaller{script: func(ctx context.Context, endpoint, method string) Outcome {
		<-ctx.Done()
		return Outcome{Kind: KindTimedOut}
	}}
	r := newRelay(t, Config{AttemptTimeout: 5 * time.Second, Budget: 50 * time.Millisecond}, c)

	start := time.Now()
	res := r.Do(context.Background(), podsRequest("1"))
	if time.Since(start) > 2*time.Second {
		t.Fatal("budget did not bound the call")
	}
	if res.Status != StatusExhausted {
		t.Fatalf("expect exhausted, got %s", res.Status)
	}
	if n := len(c.recorded()); n != 1 {
		t.Fatalf("expect loop to stop after the interrupted attempt, got %d calls", n)
	}
	if msg := gjson.GetBytes(res.Body, "error.message").String(); !strings.Contains(msg, "relay budget exceeded") {
		t.Fatalf("unexpected message %q", msg)
	}
}

type countingObserver struct {
	mu       sync.Mutex
	attempts int
	results  []Status
}

func (o *countingObserver) ObserveAttempt(Attempt) {
	o.mu.Lock()
	o.attempts++
	o.mu.Unlock()
}

func (o *countingObserver) ObserveResult(r *Result) {
	o.mu.Lock()
	o.results = append(o.results, r.Status)
	o.mu.Unlock()
}

func TestObserverSeesEveryAttempt(t *testing.T) {
	c := &scriptedCaller{script: func(ctx context.Context, endpoint, method string) Outcome {
		if endpoint == fourCandidates[0] {
			return refused(endpoint)
		}
		return ok(`{"result":true}`)
	}}
	obs := &countingObserver{}
	r, err := New(Config{Candidates: fourCandidates}, c, WithObserver(obs))
	if err != nil {
		t.Fatal(err)
	}
	r.Do(context.Background(), &proto.Request{Method: "get-version"})
	if obs.attempts != 2 || len(obs.results) != 1 || obs.results[0] != StatusDelivered {
		t.Fatalf("unexpected observations: attempts=%d results=%v", obs.attempts, obs.results)
	}
}

func TestVariants(t *testing.T) {
	r := newRelay(t, Config{Fallbacks: []Fallback{{Method: "a", Alternates: []string{"b", "a", "", "c"}}}}, &scriptedCaller{})
	got := r.Variants("a")
	if strings.Join(got, ",") != "a,b,c" {
		t.Fatalf("unexpected variants %v", got)
	}
	if got := r.Variants("z"); len(got) != 1 || got[0] != "z" {
		t.Fatalf("unexpected variants for plain method %v", got)
	}
}

func TestNewRequiresCandidates(t *testing.T) {
	if _, err := New(Config{}, &scriptedCaller{}); !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("expect ErrNoCandidates, got %v", err)
	}
}
