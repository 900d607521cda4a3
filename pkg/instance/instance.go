package instance

import (
	"fmt"
	"os"
)

// GetID identifies this worker process in logs. WORKER_ID wins; otherwise the
// hostname and pid are combined so two workers sharing a redis store can be
// told apart.
func GetID() string {
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
