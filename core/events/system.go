package events

const (
	// KindSystemStartup is published once the process is ready to serve.
	KindSystemStartup Kind = "system.startup"
	// KindSystemShutdown is the terminal event published before exit.
	KindSystemShutdown Kind = "system.shutdown"
)

// NewSystemStartup creates a startup event. It carries no payload.
func NewSystemStartup() Event {
	return New(KindSystemStartup, nil)
}

// NewSystemShutdown creates a shutdown event. It carries no payload.
func NewSystemShutdown() Event {
	return New(KindSystemShutdown, nil)
}
