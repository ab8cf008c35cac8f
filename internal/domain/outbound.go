package domain

// Message direction relative to the platform conversation.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// Attachment is a media reference delivered alongside a message.
type Attachment struct {
	Kind         ContentKind `json:"kind"`
	URL          string      `json:"url"`
	ThumbnailURL string      `json:"thumbnailUrl,omitempty"`
}

// OutboundMessage is the platform-native message-creation payload produced by
// translation. Metadata carries provenance and never overwrites
// platform-native fields. DedupeToken is the original provider message id.
type OutboundMessage struct {
	Content     string         `json:"content"`
	ContentType string         `json:"contentType"`
	Direction   string         `json:"direction"`
	Attachments []Attachment   `json:"attachments,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	DedupeToken string         `json:"dedupeToken"`
}

// PlatformOutbound is an outgoing message emitted by the platform, bound for
// the provider.
type PlatformOutbound struct {
	ConversationID int          `json:"conversationId"`
	ParticipantID  string       `json:"participantId"`
	Content        string       `json:"content"`
	MessageType    string       `json:"messageType"`
	Private        bool         `json:"private"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// ProviderSendRequest is the provider-native send shape selected by the first
// attachment's kind; text when there are no attachments.
type ProviderSendRequest struct {
	To       string      `json:"to"`
	Kind     ContentKind `json:"kind"`
	Text     string      `json:"text,omitempty"`
	MediaURL string      `json:"mediaUrl,omitempty"`
	Caption  string      `json:"caption,omitempty"`
	FileName string      `json:"fileName,omitempty"`
}
