package mailferry

import "context"

type (
	// MessageID is a Gmail message ID.
	MessageID string

	// LabelID is a Gmail label ID.
	LabelID string
)

// Format selects how much of a message GetMessage downloads.
type Format string

// FormatRaw downloads the full RFC 822 content plus labels.
const FormatRaw Format = "raw"

// Label is a label as the remote API reports it.
type Label struct {
	ID   LabelID
	Name string
}

// Message is a message fetched from the source account.
type Message struct {
	ID     MessageID
	Labels []LabelID

	// Raw is the decoded RFC 822 content. Only set for FormatRaw.
	Raw []byte
}

// ListPage is one page of a mailbox listing. An empty NextPageToken
// marks the last page.
type ListPage struct {
	IDs           []MessageID
	NextPageToken string
}

// Client is the narrow Gmail surface the transfer engine needs. Both
// the source and the archive account are driven through it, which keeps
// the engine testable against a recording fake.
type Client interface {
	ListLabels(ctx context.Context) ([]Label, error)
	CreateLabel(ctx context.Context, name string) (LabelID, error)
	GetLabel(ctx context.Context, id LabelID) (Label, error)
	ListMessages(ctx context.Context, query, pageToken string, pageSize int64) (ListPage, error)
	GetMessage(ctx context.Context, id MessageID, format Format) (Message, error)
	ImportMessage(ctx context.Context, raw []byte) (MessageID, error)
	ModifyMessageLabels(ctx context.Context, id MessageID, add []LabelID) error
}
