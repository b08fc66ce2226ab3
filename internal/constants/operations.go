package constants

// Operations carried in realtime event payloads.
const (
	OperationCreated = "CREATED"
	OperationUpdated = "UPDATED"
	OperationDeleted = "DELETED"
	OperationRead    = "READ"
)

// Subtopics multiplexed on the shared broker topic.
const (
	SubtopicChatMessages = "chatmessages"
	SubtopicUnreads      = "unreads"
	SubtopicDeliveries   = "deliveries"
)
