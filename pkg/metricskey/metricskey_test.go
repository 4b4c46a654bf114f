package metricskey

import (
	"sort"
	"testing"

	"github.com/effective-security/metrics"
	"github.com/stretchr/testify/assert"
)

func TestMetricsDefinitions(t *testing.T) {
	allMetrics := []*metrics.Describe{
		&PerfChainCall,
		&PerfCompare,
		&PerfInvocation,
		&StatsChainCallsFailed,
		&StatsChainCallsSucceeded,
		&StatsInvocationsDefaulted,
		&StatsInvocationsFailed,
		&StatsInvocationsSucceeded,
		&StatsLLMBytesReceived,
		&StatsLLMBytesSent,
		&StatsLLMInputTokens,
		&StatsLLMMessagesSent,
		&StatsLLMOutputTokens,
		&StatsLLMTotalTokens,
		&StatsUnknownVariant,
	}

	for _, m := range allMetrics {
		assert.NotEmpty(t, m.Name, "Metric name should not be empty")
		assert.NotEmpty(t, m.Help, "Metric help text should not be empty")
		assert.NotEmpty(t, m.RequiredTags, "Metric should have required tags")
	}

	assert.Equal(t, len(allMetrics), len(Metrics), "Metrics slice should contain all defined metrics")

	isSorted := sort.SliceIsSorted(Metrics, func(i, j int) bool {
		return Metrics[i].Name < Metrics[j].Name
	})
	assert.True(t, isSorted, "Metrics slice should be sorted by name")

	seen := make(map[string]bool)
	for _, m := range Metrics {
		assert.False(t, seen[m.Name], "Metric name should be unique: %s", m.Name)
		seen[m.Name] = true
	}

	t.Run("LLM metrics have app and model tags", func(t *testing.T) {
		llmMetrics := []*metrics.Describe{
			&StatsLLMMessagesSent,
			&StatsLLMBytesSent,
			&StatsLLMBytesReceived,
			&StatsLLMInputTokens,
			&StatsLLMOutputTokens,
			&StatsLLMTotalTokens,
		}
		for _, m := range llmMetrics {
			assert.Equal(t, []string{"app", "model"}, m.RequiredTags, "LLM metric tags: %s", m.Name)
		}
	})

	t.Run("Router metrics have router tag", func(t *testing.T) {
		routerMetrics := []*metrics.Describe{
			&StatsInvocationsSucceeded,
			&StatsInvocationsFailed,
			&StatsInvocationsDefaulted,
			&StatsUnknownVariant,
			&PerfInvocation,
		}
		for _, m := range routerMetrics {
			assert.Contains(t, m.RequiredTags, "router", "Router metric should have router tag: %s", m.Name)
		}
	})
}
