package interfaces

// -----------------------------------------------------------------------------
// IBroadcaster pushes committed events to live subscribers. Delivery is best
// effort: implementations must not block the caller on slow consumers.
// -----------------------------------------------------------------------------

type IBroadcaster interface {
	Broadcast(payload interface{})
}

// -----------------------------------------------------------------------------
// IDataExchanger is the outward-facing read adapter (HTTP + push).
// -----------------------------------------------------------------------------

type IDataExchanger interface {
	IBroadcaster

	// -----------------------------------------------------------------------------
	// Start the server
	Start() error

	// -----------------------------------------------------------------------------
	// Stop the server gracefully
	Stop() error
}
