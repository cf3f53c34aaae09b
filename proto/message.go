package proto

// Message represents a message in the agent system
type Message struct {
	Id        string
	Type      string
	Payload   string
	Timestamp string
}
