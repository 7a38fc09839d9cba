package mailferry

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Spec describes one transfer run.
type Spec struct {
	// SourceAccount identifies the mailbox being drained. It names the
	// main archive label and the namespace for mirrored labels.
	SourceAccount string

	// DryRun performs lookups and reporting but issues no mutating call.
	DryRun bool

	// Dedup skips messages whose Message-ID already exists in the
	// archive. Best effort; off by default.
	Dedup bool

	// Limit caps how many messages are processed. Zero means all.
	Limit int
}

// Summary is the artifact of a run. Counters only grow while the run
// is live and are read-only afterwards.
type Summary struct {
	// LabelsCreated lists archive labels created this run, in creation
	// order. Dry runs record the labels that would have been created.
	LabelsCreated []string

	Processed   int
	Transferred int
	Skipped     int
	Failed      int

	// LabelCounts maps archive label name to how many transferred
	// messages received it.
	LabelCounts map[string]int

	// Errors aggregates the per-item failures that were logged and
	// skipped over.
	Errors error
}

// Service drives the paginated transfer of a whole mailbox into the
// archive account. Processing is strictly sequential: every outbound
// call goes through the limiter, and a message's labels are applied
// only after its import confirmed.
type Service struct {
	Source  Client
	Dest    Client
	Limiter Limiter
	Backoff *Backoff
	Prompt  Prompter

	PageSize   int64
	MaxRetries int

	sleep func(ctx context.Context, d time.Duration) error
}

const (
	defaultPageSize   = 100
	defaultMaxRetries = 5
)

// NewService returns a Service with production defaults: page size
// 100, retry budget 5, terminal confirmation prompt.
func NewService(source, dest Client, limiter Limiter) *Service {
	return &Service{
		Source:     source,
		Dest:       dest,
		Limiter:    limiter,
		Backoff:    NewBackoff(),
		Prompt:     NewTerminalPrompter(),
		PageSize:   defaultPageSize,
		MaxRetries: defaultMaxRetries,
		sleep:      sleepContext,
	}
}

// Run pages through the source mailbox and transfers every message.
// A declined confirmation returns a zero-progress summary and no
// error. Per-item failures are logged and skipped; only cancellation
// or a failure of the paging loop itself aborts the run.
func (s *Service) Run(ctx context.Context, spec Spec) (*Summary, error) {
	sum := &Summary{LabelCounts: map[string]int{}}

	mode := "LIVE"
	if spec.DryRun {
		mode = "dry-run"
	}
	ok, err := s.Prompt.Confirm(fmt.Sprintf(
		"Transfer all mail from %s into the archive account (%s mode). Continue?",
		spec.SourceAccount, mode))
	if err != nil {
		return sum, errors.Wrap(err, "reading confirmation")
	}
	if !ok {
		log.Infof("transfer aborted by operator")
		return sum, nil
	}

	mirror := NewMirror(s.Source, s.Dest, s.Limiter, spec.SourceAccount, spec.DryRun)
	defer func() { sum.LabelsCreated = mirror.Created() }()

	mainID, err := mirror.GetOrCreate(ctx, spec.SourceAccount)
	if err != nil {
		return sum, errors.Wrap(err, "ensuring main archive label")
	}

	pageToken := ""
	for {
		if err := s.Limiter.Wait(ctx); err != nil {
			return sum, err
		}
		page, err := s.Source.ListMessages(ctx, "", pageToken, s.pageSize())
		if err != nil {
			return sum, errors.Wrap(err, "listing source messages")
		}
		for _, id := range page.IDs {
			if spec.Limit > 0 && sum.Processed >= spec.Limit {
				log.Infof("message limit %d reached", spec.Limit)
				return sum, nil
			}
			sum.Processed++
			if err := s.processMessage(ctx, mirror, mainID, id, spec, sum); err != nil {
				return sum, err
			}
		}
		log.Infof("page complete: processed=%d transferred=%d failed=%d",
			sum.Processed, sum.Transferred, sum.Failed)
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	log.Infof("transfer finished: processed=%d transferred=%d skipped=%d failed=%d labels=%d",
		sum.Processed, sum.Transferred, sum.Skipped, sum.Failed, len(mirror.Created()))
	return sum, nil
}

// processMessage runs one message through fetch, label resolution,
// import and label application. A nil return means the run continues;
// item-level failures are recorded on the summary instead of returned.
func (s *Service) processMessage(ctx context.Context, mirror *Mirror, mainID LabelID, id MessageID, spec Spec, sum *Summary) error {
	msg, err := s.fetchWithRetry(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		s.itemFailed(sum, id, err)
		return nil
	}

	var names []string
	for _, lid := range msg.Labels {
		name := mirror.ResolveName(ctx, lid)
		if mirrorable(name) {
			names = append(names, name)
		}
	}

	if spec.Dedup && !spec.DryRun {
		dup, err := s.alreadyArchived(ctx, msg)
		switch {
		case err != nil && ctx.Err() != nil:
			return err
		case err != nil:
			log.Warnf("duplicate check for %s failed, importing anyway: %v", id, err)
		case dup:
			log.Infof("skipping %s: already present in archive", id)
			sum.Skipped++
			return nil
		}
	}

	if spec.DryRun {
		// Mirror the label set anyway so the dry-run summary matches
		// what a live run would report.
		for _, n := range names {
			if _, err := mirror.GetOrCreate(ctx, mirror.MirrorName(n)); err != nil {
				if ctx.Err() != nil {
					return err
				}
				s.itemFailed(sum, id, err)
				return nil
			}
		}
		log.Infof("dry-run: would import %s with labels %v", id, names)
		s.countTransfer(sum, spec, names)
		return nil
	}

	if err := s.Limiter.Wait(ctx); err != nil {
		return err
	}
	imported, err := s.Dest.ImportMessage(ctx, msg.Raw)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		s.itemFailed(sum, id, errors.Wrap(err, "importing"))
		return nil
	}

	apply := []LabelID{mainID}
	for _, n := range names {
		lid, err := mirror.GetOrCreate(ctx, mirror.MirrorName(n))
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			// Transfer with a partial label set rather than lose the message.
			log.Warnf("mirroring label %q for %s: %v", n, id, err)
			continue
		}
		apply = append(apply, lid)
	}

	if err := s.Limiter.Wait(ctx); err != nil {
		return err
	}
	if err := s.Dest.ModifyMessageLabels(ctx, imported, apply); err != nil {
		if ctx.Err() != nil {
			return err
		}
		// The import already succeeded; the message stays in the archive
		// without its full label set. Surfaced via counts and logs only.
		s.itemFailed(sum, id, errors.Wrap(err, "applying labels"))
		return nil
	}

	s.countTransfer(sum, spec, names)
	return nil
}

func (s *Service) countTransfer(sum *Summary, spec Spec, names []string) {
	sum.Transferred++
	sum.LabelCounts[spec.SourceAccount]++
	for _, n := range names {
		sum.LabelCounts[spec.SourceAccount+"/"+n]++
	}
}

// fetchWithRetry downloads the raw message, retrying transient
// failures with exponential backoff. The budget allows MaxRetries
// retries after the initial attempt.
func (s *Service) fetchWithRetry(ctx context.Context, id MessageID) (Message, error) {
	maxRetries := s.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	for attempt := 0; ; attempt++ {
		if err := s.Limiter.Wait(ctx); err != nil {
			return Message{}, err
		}
		msg, err := s.Source.GetMessage(ctx, id, FormatRaw)
		if err == nil {
			return msg, nil
		}
		if !IsTransient(err) {
			return Message{}, errors.Wrap(err, "fetching")
		}
		if attempt >= maxRetries {
			return Message{}, errors.Wrapf(err, "retry budget exhausted after %d attempts", attempt+1)
		}
		delay := s.Backoff.Delay(attempt + 1)
		log.Warnf("transient failure fetching %s (attempt %d/%d), backing off %v: %v",
			id, attempt+1, maxRetries, delay, err)
		if err := s.sleep(ctx, delay); err != nil {
			return Message{}, errors.Wrap(err, "backoff interrupted")
		}
	}
}

// alreadyArchived checks the archive for a message with the same
// Message-ID header.
func (s *Service) alreadyArchived(ctx context.Context, msg Message) (bool, error) {
	mid := messageIDHeader(msg.Raw)
	if mid == "" {
		return false, nil
	}
	if err := s.Limiter.Wait(ctx); err != nil {
		return false, err
	}
	page, err := s.Dest.ListMessages(ctx, fmt.Sprintf("rfc822msgid:%s", mid), "", 1)
	if err != nil {
		return false, err
	}
	return len(page.IDs) > 0, nil
}

func (s *Service) itemFailed(sum *Summary, id MessageID, err error) {
	log.Errorf("giving up on message %s: %v", id, err)
	sum.Failed++
	sum.Errors = multierror.Append(sum.Errors, errors.Wrapf(err, "message %s", id))
}

func (s *Service) pageSize() int64 {
	if s.PageSize <= 0 {
		return defaultPageSize
	}
	return s.PageSize
}

// messageIDHeader extracts the RFC 822 Message-ID from raw content,
// without the angle brackets. Empty when absent or unparseable.
func messageIDHeader(raw []byte) string {
	m, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	return strings.Trim(m.Header.Get("Message-Id"), "<>")
}
