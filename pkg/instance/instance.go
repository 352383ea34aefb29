package instance

import "os"

// GetID returns the process instance identifier used for lock ownership and relay origin.
func GetID() string {
	if id := os.Getenv("FUELDROP_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "instance-0"
}
