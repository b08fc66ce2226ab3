package models

// ChatMessageEvent is the payload delivered on the chat messages subtopic
// whenever a chat message is created, updated or deleted.
type ChatMessageEvent struct {
	Operation string `json:"operation"`
	ThreadID  int64  `json:"threadId"`
	MessageID int64  `json:"messageId,omitempty"`
}

// UnreadEvent is the payload delivered on the unreads subtopic. The path
// encodes what the unread marker points at, for example "chat-5".
type UnreadEvent struct {
	Operation string `json:"operation"`
	ID        string `json:"id"`
	Path      string `json:"path,omitempty"`
}

// DeliveryEvent is the payload delivered on the deliveries subtopic when a
// delivery proposal or note changes state.
type DeliveryEvent struct {
	Operation  string `json:"operation"`
	DeliveryID string `json:"deliveryId"`
	Status     string `json:"status,omitempty"`
}
