package broadcast

// Kind selects the transport send method for a payload.
type Kind string

const (
	KindText  Kind = "text"
	KindPhoto Kind = "photo"
	KindVideo Kind = "video"
)

// Payload is the message fanned out to every recipient. FileID references an
// already-uploaded media object on the transport side.
type Payload struct {
	Kind    Kind
	Text    string
	FileID  string
	Caption string
}

// TextPayload builds a plain text payload.
func TextPayload(text string) Payload {
	return Payload{Kind: KindText, Text: text}
}

// PhotoPayload builds a photo payload with an optional caption.
func PhotoPayload(fileID, caption string) Payload {
	return Payload{Kind: KindPhoto, FileID: fileID, Caption: caption}
}

// VideoPayload builds a video payload with an optional caption.
func VideoPayload(fileID, caption string) Payload {
	return Payload{Kind: KindVideo, FileID: fileID, Caption: caption}
}
