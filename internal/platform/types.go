package platform

// Contact is a platform-side contact record.
type Contact struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	Identifier  string `json:"identifier"`
}

// NewContact describes a contact to create.
type NewContact struct {
	InboxID     int    `json:"inbox_id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	Identifier  string `json:"identifier"`
}

// Conversation is a platform-side conversation record.
type Conversation struct {
	ID        int    `json:"id"`
	ContactID int    `json:"contact_id"`
	InboxID   int    `json:"inbox_id"`
	Status    string `json:"status"`
}

// Message is a created platform message.
type Message struct {
	ID             int    `json:"id"`
	ConversationID int    `json:"conversation_id"`
	Content        string `json:"content"`
	MessageType    string `json:"message_type"`
	SourceID       string `json:"source_id"`
}

// Conversation statuses used by the client.
const (
	ConversationOpen     = "open"
	ConversationResolved = "resolved"
)

type contactSearchResponse struct {
	Payload []Contact `json:"payload"`
}

type contactCreateResponse struct {
	Payload struct {
		Contact Contact `json:"contact"`
	} `json:"payload"`
}

type conversationListResponse struct {
	Payload []Conversation `json:"payload"`
}

type messageCreateRequest struct {
	Content           string         `json:"content"`
	MessageType       string         `json:"message_type"`
	SourceID          string         `json:"source_id,omitempty"`
	ContentAttributes map[string]any `json:"content_attributes,omitempty"`
	Attachments       []struct {
		Kind         string `json:"kind"`
		URL          string `json:"url"`
		ThumbnailURL string `json:"thumbnail_url,omitempty"`
	} `json:"attachments,omitempty"`
}
