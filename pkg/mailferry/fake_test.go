package mailferry

import (
	"context"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
)

func init() {
	// Keep test output quiet; individual tests assert on calls, not logs.
	log.SetOutput(io.Discard)
}

type listCall struct {
	query     string
	pageToken string
	pageSize  int64
}

type modifyCall struct {
	id  MessageID
	add []LabelID
}

// fakeClient is a scripted, recording Client test double. It serves as
// either side of a transfer: pages and messages script the source,
// labels and queryResults script the archive.
type fakeClient struct {
	labels    []Label
	labelsErr error

	pages        []ListPage
	queryResults map[string]ListPage
	listErr      error

	messages map[MessageID]Message
	getErrs  map[MessageID][]error

	createErr error
	importErr error
	modifyErr error
	getLblErr error

	listLabelsCalls int
	listCalls       []listCall
	getCalls        []MessageID
	getLabelCalls   []LabelID
	createCalls     []string
	imported        [][]byte
	modifyCalls     []modifyCall

	listIdx int
}

func (f *fakeClient) ListLabels(ctx context.Context) ([]Label, error) {
	_ = ctx
	f.listLabelsCalls++
	if f.labelsErr != nil {
		return nil, f.labelsErr
	}
	return f.labels, nil
}

func (f *fakeClient) CreateLabel(ctx context.Context, name string) (LabelID, error) {
	_ = ctx
	f.createCalls = append(f.createCalls, name)
	if f.createErr != nil {
		return "", f.createErr
	}
	return LabelID("created:" + name), nil
}

func (f *fakeClient) GetLabel(ctx context.Context, id LabelID) (Label, error) {
	_ = ctx
	f.getLabelCalls = append(f.getLabelCalls, id)
	if f.getLblErr != nil {
		return Label{}, f.getLblErr
	}
	for _, l := range f.labels {
		if l.ID == id {
			return l, nil
		}
	}
	return Label{}, fmt.Errorf("label %s not found", id)
}

func (f *fakeClient) ListMessages(ctx context.Context, query, pageToken string, pageSize int64) (ListPage, error) {
	_ = ctx
	f.listCalls = append(f.listCalls, listCall{query: query, pageToken: pageToken, pageSize: pageSize})
	if f.listErr != nil {
		return ListPage{}, f.listErr
	}
	if query != "" {
		return f.queryResults[query], nil
	}
	if f.listIdx >= len(f.pages) {
		return ListPage{}, nil
	}
	page := f.pages[f.listIdx]
	f.listIdx++
	return page, nil
}

func (f *fakeClient) GetMessage(ctx context.Context, id MessageID, format Format) (Message, error) {
	_ = ctx
	_ = format
	f.getCalls = append(f.getCalls, id)
	if errs := f.getErrs[id]; len(errs) > 0 {
		err := errs[0]
		f.getErrs[id] = errs[1:]
		return Message{}, err
	}
	return f.messages[id], nil
}

func (f *fakeClient) ImportMessage(ctx context.Context, raw []byte) (MessageID, error) {
	_ = ctx
	if f.importErr != nil {
		return "", f.importErr
	}
	f.imported = append(f.imported, append([]byte(nil), raw...))
	return MessageID(fmt.Sprintf("imported-%d", len(f.imported))), nil
}

func (f *fakeClient) ModifyMessageLabels(ctx context.Context, id MessageID, add []LabelID) error {
	_ = ctx
	f.modifyCalls = append(f.modifyCalls, modifyCall{id: id, add: append([]LabelID(nil), add...)})
	return f.modifyErr
}

var _ Client = (*fakeClient)(nil)

// noLimiter never delays; used where pacing is not under test.
type noLimiter struct{}

func (noLimiter) Wait(ctx context.Context) error {
	_ = ctx
	return nil
}

// recordingPrompter answers every confirmation with resp.
type recordingPrompter struct {
	resp    bool
	prompts []string
}

func (p *recordingPrompter) Confirm(prompt string) (bool, error) {
	p.prompts = append(p.prompts, prompt)
	return p.resp, nil
}
