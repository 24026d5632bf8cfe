package agent

import (
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// Usage counts the model requests and tokens of a session. The zero value is ready to use
// and a nil Usage counts nothing.
type Usage struct {
	mu    sync.Mutex
	stats UsageStats
}

// UsageStats is a snapshot of Usage.
type UsageStats struct {
	Requests     int
	PromptTokens int64
	OutputTokens int64
	TotalTokens  int64
	CacheHits    int
}

func (u *Usage) add(m *genai.GenerateContentResponseUsageMetadata) {
	if u == nil {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.stats.Requests++
	if m == nil {
		return
	}
	u.stats.PromptTokens += int64(m.PromptTokenCount)
	u.stats.OutputTokens += int64(m.CandidatesTokenCount)
	u.stats.TotalTokens += int64(m.TotalTokenCount)
}

func (u *Usage) hit() {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.stats.CacheHits++
	u.mu.Unlock()
}

// Stats returns the counters.
func (u *Usage) Stats() UsageStats {
	if u == nil {
		return UsageStats{}
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.stats
}

func (s UsageStats) String() string {
	return fmt.Sprintf("%d requests, %d tokens (%d prompt, %d output), %d cached answers",
		s.Requests, s.TotalTokens, s.PromptTokens, s.OutputTokens, s.CacheHits)
}
