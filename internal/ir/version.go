package ir

// Version constants for the log format and the crawler.
const (
	// LogFormatVersion is bumped when the log table layout changes.
	LogFormatVersion = "1"

	// CrawlerVersion is the fleetcrawl release version.
	CrawlerVersion = "0.1.0"
)
