package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	// StatsLLMMessagesSent is base for counter metric for total messages sent to LLM
	StatsLLMMessagesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_messages_sent",
		Help:         "stats_llm_messages_sent provides total messages sent to LLM",
		RequiredTags: []string{"app", "model"},
	}

	StatsLLMBytesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_bytes_sent",
		Help:         "stats_llm_bytes_sent provides total bytes sent to LLM",
		RequiredTags: []string{"app", "model"},
	}

	StatsLLMBytesReceived = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_bytes_received",
		Help:         "stats_llm_bytes_received provides total bytes received from LLM",
		RequiredTags: []string{"app", "model"},
	}

	StatsLLMInputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_input_tokens",
		Help:         "stats_llm_input_tokens provides total input tokens sent to LLM",
		RequiredTags: []string{"app", "model"},
	}

	StatsLLMOutputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_output_tokens",
		Help:         "stats_llm_output_tokens provides total output tokens received from LLM",
		RequiredTags: []string{"app", "model"},
	}

	StatsLLMTotalTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_total_tokens",
		Help:         "stats_llm_total_tokens provides total tokens sent and received from LLM",
		RequiredTags: []string{"app", "model"},
	}

	StatsInvocationsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_invocations_succeeded",
		Help:         "stats_invocations_succeeded provides total invocations succeeded",
		RequiredTags: []string{"router", "variant"},
	}

	StatsInvocationsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_invocations_failed",
		Help:         "stats_invocations_failed provides total invocations failed",
		RequiredTags: []string{"router", "variant"},
	}

	StatsInvocationsDefaulted = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_invocations_defaulted",
		Help:         "stats_invocations_defaulted provides total invocations resolved to the default variant",
		RequiredTags: []string{"router"},
	}

	StatsUnknownVariant = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_unknown_variant",
		Help:         "stats_unknown_variant provides total resolutions of unknown variant keys",
		RequiredTags: []string{"router"},
	}

	StatsChainCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_chain_calls_succeeded",
		Help:         "stats_chain_calls_succeeded provides total chain calls succeeded",
		RequiredTags: []string{"app"},
	}

	StatsChainCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_chain_calls_failed",
		Help:         "stats_chain_calls_failed provides total chain calls failed",
		RequiredTags: []string{"app"},
	}
)

// Perf
var (
	PerfInvocation = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_invocation",
		Help:         "perf_invocation provides duration of router invocation",
		RequiredTags: []string{"router"},
	}

	PerfChainCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_chain_call",
		Help:         "perf_chain_call provides duration of chain call",
		RequiredTags: []string{"app"},
	}

	PerfCompare = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_compare",
		Help:         "perf_compare provides duration of comparison run",
		RequiredTags: []string{"app", "axis"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
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
