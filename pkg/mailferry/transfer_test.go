package mailferry

import (
	"context"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func newTestService(source, dest Client) (*Service, *recordingPrompter) {
	prompt := &recordingPrompter{resp: true}
	svc := NewService(source, dest, noLimiter{})
	svc.Prompt = prompt
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		_ = ctx
		_ = d
		return nil
	}
	return svc, prompt
}

// threeMessageSource scripts the mailbox from the end-to-end scenario:
// three messages, two labeled Project-X, one with no custom label.
func threeMessageSource() *fakeClient {
	return &fakeClient{
		labels: []Label{
			{ID: "L_PROJ", Name: "Project-X"},
			{ID: "UNREAD", Name: "UNREAD"},
			{ID: "CATEGORY_PERSONAL", Name: "CATEGORY_PERSONAL"},
		},
		pages: []ListPage{{IDs: []MessageID{"m1", "m2", "m3"}}},
		messages: map[MessageID]Message{
			"m1": {ID: "m1", Labels: []LabelID{"L_PROJ", "UNREAD"}, Raw: rawMessage("m1@x")},
			"m2": {ID: "m2", Labels: []LabelID{"L_PROJ"}, Raw: rawMessage("m2@x")},
			"m3": {ID: "m3", Labels: []LabelID{"CATEGORY_PERSONAL"}, Raw: rawMessage("m3@x")},
		},
	}
}

func rawMessage(msgid string) []byte {
	return []byte("Message-Id: <" + msgid + ">\r\nSubject: hello\r\nFrom: a@x\r\n\r\nbody\r\n")
}

func TestRunLiveTransfer(t *testing.T) {
	source := threeMessageSource()
	dest := &fakeClient{}
	svc, _ := newTestService(source, dest)

	sum, err := svc.Run(context.Background(), Spec{SourceAccount: "source@x"})
	require.NoError(t, err)

	require.Equal(t, 3, sum.Processed)
	require.Equal(t, 3, sum.Transferred)
	require.Equal(t, 0, sum.Failed)
	require.Equal(t, []string{"source@x", "source@x/Project-X"}, sum.LabelsCreated)
	require.Equal(t, []string{"source@x", "source@x/Project-X"}, dest.createCalls)
	require.Len(t, dest.imported, 3)

	// Every import gets the main label; exactly two get the mirror.
	require.Len(t, dest.modifyCalls, 3)
	mirrored := 0
	for _, mc := range dest.modifyCalls {
		require.Contains(t, mc.add, LabelID("created:source@x"))
		for _, l := range mc.add {
			if l == "created:source@x/Project-X" {
				mirrored++
			}
		}
	}
	require.Equal(t, 2, mirrored)

	require.Equal(t, 3, sum.LabelCounts["source@x"])
	require.Equal(t, 2, sum.LabelCounts["source@x/Project-X"])
}

func TestRunDryRunIssuesNoMutations(t *testing.T) {
	source := threeMessageSource()
	dest := &fakeClient{}
	svc, prompt := newTestService(source, dest)

	sum, err := svc.Run(context.Background(), Spec{SourceAccount: "source@x", DryRun: true})
	require.NoError(t, err)

	require.Empty(t, dest.createCalls)
	require.Empty(t, dest.imported)
	require.Empty(t, dest.modifyCalls)

	// The prompt is still shown so the operator confirms intent.
	require.Len(t, prompt.prompts, 1)
	require.Contains(t, prompt.prompts[0], "dry-run")

	// The summary matches what a live run would report.
	require.Equal(t, 3, sum.Transferred)
	require.Equal(t, []string{"source@x", "source@x/Project-X"}, sum.LabelsCreated)
}

func TestRunDeclinedConfirmation(t *testing.T) {
	source := threeMessageSource()
	dest := &fakeClient{}
	svc, prompt := newTestService(source, dest)
	prompt.resp = false

	sum, err := svc.Run(context.Background(), Spec{SourceAccount: "source@x"})
	require.NoError(t, err)

	require.Zero(t, sum.Processed)
	require.Zero(t, sum.Transferred)
	require.Empty(t, sum.LabelsCreated)
	require.Empty(t, source.listCalls)
	require.Empty(t, dest.createCalls)
	require.Empty(t, dest.imported)
	require.Empty(t, dest.modifyCalls)
}

func TestRunThreadsPageCursor(t *testing.T) {
	source := &fakeClient{
		pages: []ListPage{
			{IDs: []MessageID{"m1"}, NextPageToken: "t1"},
			{IDs: []MessageID{"m2"}, NextPageToken: "t2"},
			{IDs: []MessageID{"m3"}},
		},
		messages: map[MessageID]Message{
			"m1": {ID: "m1", Raw: rawMessage("m1@x")},
			"m2": {ID: "m2", Raw: rawMessage("m2@x")},
			"m3": {ID: "m3", Raw: rawMessage("m3@x")},
		},
	}
	svc, _ := newTestService(source, &fakeClient{})

	sum, err := svc.Run(context.Background(), Spec{SourceAccount: "source@x"})
	require.NoError(t, err)
	require.Equal(t, 3, sum.Transferred)

	require.Len(t, source.listCalls, 3)
	require.Equal(t, "", source.listCalls[0].pageToken)
	require.Equal(t, "t1", source.listCalls[1].pageToken)
	require.Equal(t, "t2", source.listCalls[2].pageToken)
}

func TestRunRetryCeiling(t *testing.T) {
	transient := func() error {
		return &googleapi.Error{Code: 429, Message: "rate limit"}
	}
	source := threeMessageSource()
	source.getErrs = map[MessageID][]error{
		// m1 fails on the first attempt and on all five retries.
		"m1": {transient(), transient(), transient(), transient(), transient(), transient()},
	}
	dest := &fakeClient{}
	svc, _ := newTestService(source, dest)

	var delays []time.Duration
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		_ = ctx
		delays = append(delays, d)
		return nil
	}

	sum, err := svc.Run(context.Background(), Spec{SourceAccount: "source@x"})
	require.NoError(t, err)

	attempts := 0
	for _, id := range source.getCalls {
		if id == "m1" {
			attempts++
		}
	}
	require.Equal(t, 6, attempts) // initial attempt + 5 retries, never a 7th
	require.Len(t, delays, 5)

	// The failure is per-item; the rest of the mailbox still transfers.
	require.Equal(t, 1, sum.Failed)
	require.Equal(t, 2, sum.Transferred)
	require.Equal(t, 3, sum.Processed)

	merr, ok := sum.Errors.(*multierror.Error)
	require.True(t, ok)
	require.Len(t, merr.Errors, 1)
}

func TestRunTerminalFetchErrorIsNotRetried(t *testing.T) {
	source := threeMessageSource()
	source.getErrs = map[MessageID][]error{
		"m2": {&googleapi.Error{Code: 404, Message: "gone"}},
	}
	svc, _ := newTestService(source, &fakeClient{})

	sum, err := svc.Run(context.Background(), Spec{SourceAccount: "source@x"})
	require.NoError(t, err)

	attempts := 0
	for _, id := range source.getCalls {
		if id == "m2" {
			attempts++
		}
	}
	require.Equal(t, 1, attempts)
	require.Equal(t, 1, sum.Failed)
	require.Equal(t, 2, sum.Transferred)
}

func TestRunLabelApplyFailureLeavesImportInPlace(t *testing.T) {
	source := threeMessageSource()
	dest := &fakeClient{modifyErr: &googleapi.Error{Code: 400, Message: "bad label"}}
	svc, _ := newTestService(source, dest)

	sum, err := svc.Run(context.Background(), Spec{SourceAccount: "source@x"})
	require.NoError(t, err)

	// Imports happened but none could be labeled: counted as failures,
	// not transfers, and never rolled back.
	require.Len(t, dest.imported, 3)
	require.Equal(t, 3, sum.Failed)
	require.Equal(t, 0, sum.Transferred)
}

func TestRunDedupSkipsExistingMessages(t *testing.T) {
	source := threeMessageSource()
	dest := &fakeClient{
		queryResults: map[string]ListPage{
			"rfc822msgid:m2@x": {IDs: []MessageID{"already-there"}},
		},
	}
	svc, _ := newTestService(source, dest)

	sum, err := svc.Run(context.Background(), Spec{SourceAccount: "source@x", Dedup: true})
	require.NoError(t, err)

	require.Equal(t, 1, sum.Skipped)
	require.Equal(t, 2, sum.Transferred)
	require.Len(t, dest.imported, 2)
}

func TestRunLimitStopsEarly(t *testing.T) {
	source := threeMessageSource()
	svc, _ := newTestService(source, &fakeClient{})

	sum, err := svc.Run(context.Background(), Spec{SourceAccount: "source@x", Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 2, sum.Processed)
	require.Equal(t, 2, sum.Transferred)
}

func TestRunCancellationAbortsRun(t *testing.T) {
	source := threeMessageSource()
	svc, _ := newTestService(source, &fakeClient{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.Limiter = NewTokenBucket(1000) // real limiter observes the context

	_, err := svc.Run(ctx, Spec{SourceAccount: "source@x"})
	require.Error(t, err)
}

func TestMessageIDHeader(t *testing.T) {
	require.Equal(t, "abc@x", messageIDHeader(rawMessage("abc@x")))
	require.Equal(t, "", messageIDHeader([]byte("not a message")))
	require.Equal(t, "", messageIDHeader([]byte("Subject: no id\r\n\r\nbody\r\n")))
}
