package mailferry

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	gmail "google.golang.org/api/gmail/v1"
)

const me = "me"

// Connection adapts *gmail.Service to the Client interface for one
// account.
type Connection struct {
	svc     *gmail.Service
	account string
}

func NewConnection(svc *gmail.Service, account string) *Connection {
	return &Connection{svc: svc, account: account}
}

// Account returns the email address this connection authenticates as.
func (c *Connection) Account() string { return c.account }

func (c *Connection) rpc(name string, cb func() error, af string, args ...interface{}) error {
	st := time.Now()
	err := cb()
	log.Debugf("RPC[%s]> %s(%s) => %v %v", c.account, name, fmt.Sprintf(af, args...), err, time.Since(st))
	return err
}

func (c *Connection) ListLabels(ctx context.Context) ([]Label, error) {
	var res *gmail.ListLabelsResponse
	err := c.rpc("gmail.Users.Labels.List", func() (err error) {
		res, err = c.svc.Users.Labels.List(me).Context(ctx).Do()
		return
	}, "")
	if err != nil {
		return nil, errors.Wrap(err, "listing labels")
	}
	labels := make([]Label, 0, len(res.Labels))
	for _, l := range res.Labels {
		labels = append(labels, Label{ID: LabelID(l.Id), Name: l.Name})
	}
	return labels, nil
}

func (c *Connection) CreateLabel(ctx context.Context, name string) (LabelID, error) {
	var created *gmail.Label
	err := c.rpc("gmail.Users.Labels.Create", func() (err error) {
		created, err = c.svc.Users.Labels.Create(me, &gmail.Label{
			Name:                  name,
			LabelListVisibility:   "labelShow",
			MessageListVisibility: "show",
		}).Context(ctx).Do()
		return
	}, "name=%q", name)
	if err != nil {
		return "", errors.Wrapf(err, "creating label %q", name)
	}
	return LabelID(created.Id), nil
}

func (c *Connection) GetLabel(ctx context.Context, id LabelID) (Label, error) {
	var res *gmail.Label
	err := c.rpc("gmail.Users.Labels.Get", func() (err error) {
		res, err = c.svc.Users.Labels.Get(me, string(id)).Context(ctx).Do()
		return
	}, "id=%q", id)
	if err != nil {
		return Label{}, errors.Wrapf(err, "getting label %s", id)
	}
	return Label{ID: LabelID(res.Id), Name: res.Name}, nil
}

func (c *Connection) ListMessages(ctx context.Context, query, pageToken string, pageSize int64) (ListPage, error) {
	call := c.svc.Users.Messages.List(me).
		MaxResults(pageSize).
		PageToken(pageToken).
		IncludeSpamTrash(false).
		Fields("messages/id,nextPageToken").
		Context(ctx)
	if query != "" {
		call = call.Q(query)
	}
	var res *gmail.ListMessagesResponse
	err := c.rpc("gmail.Users.Messages.List", func() (err error) {
		res, err = call.Do()
		return
	}, "token=%q size=%d query=%q", pageToken, pageSize, query)
	if err != nil {
		return ListPage{}, errors.Wrap(err, "listing messages")
	}
	page := ListPage{NextPageToken: res.NextPageToken}
	for _, m := range res.Messages {
		page.IDs = append(page.IDs, MessageID(m.Id))
	}
	return page, nil
}

func (c *Connection) GetMessage(ctx context.Context, id MessageID, format Format) (Message, error) {
	var res *gmail.Message
	err := c.rpc("gmail.Users.Messages.Get", func() (err error) {
		res, err = c.svc.Users.Messages.Get(me, string(id)).Format(string(format)).Context(ctx).Do()
		return
	}, "id=%q format=%q", id, format)
	if err != nil {
		return Message{}, err
	}
	msg := Message{ID: MessageID(res.Id)}
	for _, l := range res.LabelIds {
		msg.Labels = append(msg.Labels, LabelID(l))
	}
	if res.Raw != "" {
		raw, err := base64.URLEncoding.DecodeString(res.Raw)
		if err != nil {
			return Message{}, errors.Wrapf(err, "decoding raw content of %s", id)
		}
		msg.Raw = raw
	}
	return msg, nil
}

// ImportMessage inserts raw content via the import endpoint, which
// runs the normal delivery scan and preserves the Date header as the
// internal date.
func (c *Connection) ImportMessage(ctx context.Context, raw []byte) (MessageID, error) {
	var res *gmail.Message
	err := c.rpc("gmail.Users.Messages.Import", func() (err error) {
		res, err = c.svc.Users.Messages.Import(me, &gmail.Message{
			Raw: base64.URLEncoding.EncodeToString(raw),
		}).InternalDateSource("dateHeader").Context(ctx).Do()
		return
	}, "bytes=%d", len(raw))
	if err != nil {
		return "", err
	}
	return MessageID(res.Id), nil
}

func (c *Connection) ModifyMessageLabels(ctx context.Context, id MessageID, add []LabelID) error {
	ids := make([]string, 0, len(add))
	for _, l := range add {
		ids = append(ids, string(l))
	}
	return c.rpc("gmail.Users.Messages.Modify", func() error {
		_, err := c.svc.Users.Messages.Modify(me, string(id), &gmail.ModifyMessageRequest{
			AddLabelIds: ids,
		}).Context(ctx).Do()
		return err
	}, "id=%q add=%v", id, ids)
}

var _ Client = (*Connection)(nil)
