package instance

import "os"

// GetID identifies this process in logs. OUTFLOW_INSTANCE_ID takes precedence
// over the hostname; bare local runs get a static default.
func GetID() string {
	if id := os.Getenv("OUTFLOW_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "outflow-0"
}
