package messaging

import (
	"context"
	"fmt"
	"time"
)

// HealthStatus is the health of a broker connection.
type HealthStatus struct {
	Connected bool          `json:"connected"`
	Latency   time.Duration `json:"latency_ms"`
	Error     string        `json:"error,omitempty"`
}

// CheckClientHealth reports whether client is connected and how long a
// round trip to the server takes.
func CheckClientHealth(ctx context.Context, client Conn) HealthStatus {
	status := HealthStatus{}

	if client == nil {
		status.Error = "client is nil"
		return status
	}

	status.Connected = client.IsConnected()
	if !status.Connected {
		status.Error = "not connected to message broker"
		return status
	}

	if err := ctx.Err(); err != nil {
		status.Error = fmt.Sprintf("health check failed: %v", err)
		return status
	}

	rtt, err := client.RTT()
	if err != nil {
		status.Error = fmt.Sprintf("health check failed: %v", err)
		return status
	}
	status.Latency = rtt
	return status
}
