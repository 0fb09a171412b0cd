package protocol

// RPC method names the assistant gateway recognizes. Only the connect
// handshake and the blocking escalation call are used by rpcclient; the
// gateway is free to support more, but this hub never calls them.
const (
	MethodConnect   = "connect"
	MethodAgentWait = "agent.wait"
	MethodAgent     = "agent"
	MethodHealth    = "health"
)
