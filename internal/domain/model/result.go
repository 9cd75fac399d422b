package model

// Channel identifies which write path produced a result.
type Channel string

const (
	ChannelDirect    Channel = "direct"
	ChannelAutomated Channel = "automated"
)

// ExecutionResult is the terminal outcome of one write operation.
type ExecutionResult struct {
	Success    bool
	ProviderID string
	Error      *APIError
	Channel    Channel
}

// BatchItem is the outcome of one domain within a batch.
type BatchItem struct {
	Domain     string
	Success    bool
	ProviderID string
	Status     string
	Error      *APIError
}

// BatchSummary counts batch outcomes.
type BatchSummary struct {
	Total      int
	Successful int
	Failed     int
}

// BatchResult aggregates a batch. Results lists successes before failures.
type BatchResult struct {
	Summary BatchSummary
	Results []BatchItem
}
