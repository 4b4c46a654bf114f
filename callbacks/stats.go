package callbacks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/effective-security/llmswitch/pkg/chain"
	"github.com/effective-security/llmswitch/pkg/llms"
	"github.com/effective-security/llmswitch/pkg/llmutils"
)

// AppStats are the counters of the app invocations
type AppStats struct {
	App string `json:"app" yaml:"app" toml:"app"`

	Calls          uint32 `json:"calls" yaml:"calls" toml:"calls"`
	CallsSucceeded uint32 `json:"calls_succeeded" yaml:"calls_succeeded" toml:"calls_succeeded"`
	CallsFailed    uint32 `json:"calls_failed" yaml:"calls_failed" toml:"calls_failed"`
	LLMCalls       uint32 `json:"llm_calls" yaml:"llm_calls" toml:"llm_calls"`

	LLMBytesOut     uint64 `json:"llm_bytes_out" yaml:"llm_bytes_out" toml:"llm_bytes_out"`
	LLMBytesIn      uint64 `json:"llm_bytes_in" yaml:"llm_bytes_in" toml:"llm_bytes_in"`
	LLMInputTokens  uint64 `json:"llm_input_tokens" yaml:"llm_input_tokens" toml:"llm_input_tokens"`
	LLMOutputTokens uint64 `json:"llm_output_tokens" yaml:"llm_output_tokens" toml:"llm_output_tokens"`
	LLMTotalTokens  uint64 `json:"llm_total_tokens" yaml:"llm_total_tokens" toml:"llm_total_tokens"`

	// Backends is the number of successful calls per backend key
	Backends map[string]uint32 `json:"backends,omitempty" yaml:"backends,omitempty" toml:"backends,omitempty"`
	Duration time.Duration     `json:"duration" yaml:"duration" toml:"duration"`
}

// Stats accumulates AppStats per app
type Stats struct {
	apps map[string]*AppStats
	lock sync.Mutex
}

func NewStats() *Stats {
	return &Stats{apps: make(map[string]*AppStats)}
}

func (l *Stats) get(app string) *AppStats {
	s := l.apps[app]
	if s == nil {
		s = &AppStats{App: app, Backends: map[string]uint32{}}
		l.apps[app] = s
	}
	return s
}

// Get returns a copy of the app stats, nil if the app was never invoked
func (l *Stats) Get(app string) *AppStats {
	l.lock.Lock()
	defer l.lock.Unlock()
	s := l.apps[app]
	if s == nil {
		return nil
	}
	cp := *s
	cp.Backends = make(map[string]uint32, len(s.Backends))
	for k, v := range s.Backends {
		cp.Backends[k] = v
	}
	return &cp
}

// List returns the stats sorted by the app name
func (l *Stats) List() []*AppStats {
	l.lock.Lock()
	names := make([]string, 0, len(l.apps))
	for name := range l.apps {
		names = append(names, name)
	}
	l.lock.Unlock()

	sort.Strings(names)
	list := make([]*AppStats, 0, len(names))
	for _, name := range names {
		list = append(list, l.Get(name))
	}
	return list
}

func (l *Stats) OnInvokeStart(ctx context.Context, app string, req *chain.Request) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.get(app).Calls++
}

func (l *Stats) OnInvokeEnd(ctx context.Context, res *chain.Result) {
	l.lock.Lock()
	defer l.lock.Unlock()
	s := l.get(res.App)
	s.CallsSucceeded++
	s.Backends[res.Keys.Backend]++
	s.Duration += res.Duration
}

func (l *Stats) OnInvokeError(ctx context.Context, app string, req *chain.Request, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.get(app).CallsFailed++
}

func (l *Stats) OnLLMCallStart(ctx context.Context, app string, model llms.Model, messages []llms.Message) {
	l.lock.Lock()
	defer l.lock.Unlock()
	s := l.get(app)
	s.LLMCalls++
	s.LLMBytesOut += llmutils.CountMessagesContentSize(messages)
}

func (l *Stats) OnLLMCallEnd(ctx context.Context, app string, model llms.Model, resp *llms.ContentResponse) {
	in, out, total := llmutils.CountTokens(resp)

	l.lock.Lock()
	defer l.lock.Unlock()
	s := l.get(app)
	s.LLMBytesIn += llmutils.CountResponseContentSize(resp)
	s.LLMInputTokens += uint64(in)
	s.LLMOutputTokens += uint64(out)
	s.LLMTotalTokens += uint64(total)
}
