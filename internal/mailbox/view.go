// Package mailbox derives per-user folder views from the single flat message
// collection and owns all message mutations (send, drafts, star, delete,
// broadcast). Folder membership is partly the stored tag and partly the
// viewer's relation to the message: inbox is "addressed to me" and sent is
// "written by me" regardless of the tag, while drafts and starred also
// consult the stored flags.
package mailbox

import (
	"context"
	"sort"
	"strings"

	"github.com/lettermill/lettermill/internal/common"
	"github.com/lettermill/lettermill/internal/models"
	"github.com/lettermill/lettermill/internal/store"
)

type View struct {
	store store.Store
}

func NewView(st store.Store) *View {
	return &View{store: st}
}

func matchesFolder(msg models.Message, email, folder string) bool {
	switch folder {
	case models.FolderInbox:
		return msg.To == email && msg.Folder != models.FolderDrafts
	case models.FolderSent:
		return msg.From == email && msg.Folder != models.FolderDrafts
	case models.FolderDrafts:
		return msg.Folder == models.FolderDrafts && msg.From == email
	case models.FolderStarred:
		return msg.Starred && msg.Involves(email)
	default:
		return false
	}
}

// List returns the user's view of a folder, most recent first. Ties keep the
// original insertion order.
func (v *View) List(ctx context.Context, email, folder string) ([]models.Message, error) {
	switch folder {
	case models.FolderInbox, models.FolderSent, models.FolderDrafts, models.FolderStarred:
	default:
		return nil, common.ErrNotFound
	}

	all, err := v.store.ListMessages(ctx)
	if err != nil {
		return nil, err
	}

	msgs := make([]models.Message, 0)
	for _, msg := range all {
		if matchesFolder(msg, email, folder) {
			msgs = append(msgs, msg)
		}
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
	})
	return msgs, nil
}

// Get returns a single message and marks it read. A message that exists but
// does not involve the caller is reported as not found, so callers cannot
// probe for other users' mail.
func (v *View) Get(ctx context.Context, id, email string) (models.Message, error) {
	msg, err := v.store.GetMessage(ctx, id)
	if err != nil {
		return models.Message{}, err
	}
	if !msg.Involves(email) {
		return models.Message{}, common.ErrNotFound
	}

	if !msg.Read {
		msg.Read = true
		if err := v.store.UpdateMessage(ctx, msg); err != nil {
			return models.Message{}, err
		}
	}
	return msg, nil
}

// Search returns the caller's messages where the query occurs, case
// insensitively, in subject, body or sender address. An empty query matches
// everything the caller is party to.
func (v *View) Search(ctx context.Context, email, query string) ([]models.Message, error) {
	all, err := v.store.ListMessages(ctx)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(query)
	msgs := make([]models.Message, 0)
	for _, msg := range all {
		if !msg.Involves(email) {
			continue
		}
		if q == "" ||
			strings.Contains(strings.ToLower(msg.Subject), q) ||
			strings.Contains(strings.ToLower(msg.Body), q) ||
			strings.Contains(strings.ToLower(msg.From), q) {
			msgs = append(msgs, msg)
		}
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
	})
	return msgs, nil
}

// Send appends a sent message from the user. The recipient sees it in their
// inbox by virtue of being addressed to them.
func (v *View) Send(ctx context.Context, from, to, subject, body string) (models.Message, error) {
	if to == "" {
		return models.Message{}, common.ErrValidation
	}
	return v.store.AddMessage(ctx, models.Message{
		From:    from,
		To:      to,
		Subject: subject,
		Body:    body,
		Folder:  models.FolderSent,
	})
}

// SaveDraft appends a draft owned by the user.
func (v *View) SaveDraft(ctx context.Context, from, to, subject, body string) (models.Message, error) {
	return v.store.AddMessage(ctx, models.Message{
		From:    from,
		To:      to,
		Subject: subject,
		Body:    body,
		Folder:  models.FolderDrafts,
	})
}

// ToggleStar flips the starred flag and returns the new value.
func (v *View) ToggleStar(ctx context.Context, id, email string) (bool, error) {
	msg, err := v.store.GetMessage(ctx, id)
	if err != nil {
		return false, err
	}
	if !msg.Involves(email) {
		return false, common.ErrNotFound
	}

	msg.Starred = !msg.Starred
	if err := v.store.UpdateMessage(ctx, msg); err != nil {
		return false, err
	}
	return msg.Starred, nil
}

// Delete removes a message the caller is party to.
func (v *View) Delete(ctx context.Context, id, email string) error {
	msg, err := v.store.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	if !msg.Involves(email) {
		return common.ErrNotFound
	}
	return v.store.DeleteMessage(ctx, id)
}

// Broadcast fans a message out to every non-admin user, one individually
// addressed copy each. The admin never receives its own broadcast.
func (v *View) Broadcast(ctx context.Context, adminEmail, subject, body string) (int, error) {
	users, err := v.store.ListUsers(ctx)
	if err != nil {
		return 0, err
	}

	var batch []models.Message
	for _, user := range users {
		if user.Admin || user.Email == adminEmail {
			continue
		}
		batch = append(batch, models.Message{
			From:        adminEmail,
			To:          user.Email,
			Subject:     subject,
			Body:        body,
			Folder:      models.FolderInbox,
			Highlighted: true,
		})
	}

	if len(batch) == 0 {
		return 0, nil
	}
	if _, err := v.store.AddMessages(ctx, batch); err != nil {
		return 0, err
	}
	return len(batch), nil
}

// Counts summarizes the user's folders for the user-info endpoint.
type Counts struct {
	Inbox   int `json:"inbox"`
	Unread  int `json:"unread"`
	Sent    int `json:"sent"`
	Drafts  int `json:"drafts"`
	Starred int `json:"starred"`
}

func (v *View) Counts(ctx context.Context, email string) (Counts, error) {
	all, err := v.store.ListMessages(ctx)
	if err != nil {
		return Counts{}, err
	}

	var c Counts
	for _, msg := range all {
		if matchesFolder(msg, email, models.FolderInbox) {
			c.Inbox++
			if !msg.Read {
				c.Unread++
			}
		}
		if matchesFolder(msg, email, models.FolderSent) {
			c.Sent++
		}
		if matchesFolder(msg, email, models.FolderDrafts) {
			c.Drafts++
		}
		if matchesFolder(msg, email, models.FolderStarred) {
			c.Starred++
		}
	}
	return c, nil
}
