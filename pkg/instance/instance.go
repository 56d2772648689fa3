package instance

import "os"

const defaultID = "stockledger-0"

// GetID identifies this process in lock ownership and logs. STOCKLEDGER_INSTANCE_ID
// wins, then the hostname.
func GetID() string {
	if id := os.Getenv("STOCKLEDGER_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return defaultID
}
