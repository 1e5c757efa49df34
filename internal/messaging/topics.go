package messaging

// Topic constants for published run events
const (
	TopicAccountResults = "stobix.account_results" // one event per processed account
	TopicCycleReports   = "stobix.cycle_reports"   // one event per finished cycle
)
