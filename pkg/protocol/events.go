package protocol

// WebSocket event names the gateway pushes ahead of a response.
const (
	// EventConnectChallenge carries the nonce the client must echo back
	// (as the "nonce" parameter, next to its auth token) on its connect
	// request.
	EventConnectChallenge = "connect.challenge"
)
