package constants

// Fixed service paths; the REST API proper is assembled in the router.
const (
	PathHealth = "/health"
	PathReady  = "/ready"

	PathWSIngest = "/ws/ingest/:stream_key"
	PathWSLive   = "/ws/live/:stream_key"
)
