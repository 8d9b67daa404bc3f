package model

// NotificationResult records one delivery attempt.
type NotificationResult struct {
	VideoID   VideoID
	Delivered bool
	Error     string
}

// RunReport aggregates the counters of a single pipeline run.
type RunReport struct {
	VideosSeen            int
	SkippedNoTranscript   int
	SkippedSummarizeError int
	NotificationsSent     int
	NotificationsFailed   int
}
