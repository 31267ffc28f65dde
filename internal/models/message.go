package models

import "time"

// Folder tags for stored messages. "inbox" and "sent" are additionally
// inferred from sender/recipient identity when listing; only drafts rely
// purely on the tag.
const (
	FolderInbox   = "inbox"
	FolderSent    = "sent"
	FolderDrafts  = "drafts"
	FolderStarred = "starred" // virtual folder, never stored
)

// Message represents a unit of mail in the flat message collection.
// A message belongs to exactly one stored folder at a time.
type Message struct {
	ID           string    `json:"id"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	Subject      string    `json:"subject"`
	Body         string    `json:"body"`
	Folder       string    `json:"folder"`
	Read         bool      `json:"read"`
	Starred      bool      `json:"starred"`
	Highlighted  bool      `json:"highlighted,omitempty"`
	Verification bool      `json:"verification,omitempty"`
	Category     string    `json:"category,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Involves reports whether the given address is the sender or recipient.
func (m Message) Involves(email string) bool {
	return m.From == email || m.To == email
}
