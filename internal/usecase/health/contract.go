package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// BusChecker checks the message bus connection.
type BusChecker interface {
	HealthCheck(ctx context.Context) error
}
