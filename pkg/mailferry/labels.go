package mailferry

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// categoryPrefix marks Gmail's tab categories (CATEGORY_SOCIAL etc.),
// which are transient markers rather than archival categories.
const categoryPrefix = "CATEGORY_"

// reservedNames are system markers never mirrored into the archive.
var reservedNames = map[string]bool{
	"UNREAD":    true,
	"STARRED":   true,
	"IMPORTANT": true,
	"TRASH":     true,
	"SPAM":      true,
}

// mirrorable reports whether a source label name should be recreated
// in the archive account.
func mirrorable(name string) bool {
	if strings.HasPrefix(name, categoryPrefix) {
		return false
	}
	return !reservedNames[name]
}

// Mirror maps source label IDs to names and lazily recreates labels in
// the archive account. All caches live for one run only, which is what
// keeps the name→ID mapping coherent: within a run a source name can
// never resolve to two different archive IDs.
type Mirror struct {
	source  Client
	dest    Client
	limiter Limiter
	account string
	dryRun  bool

	names       map[LabelID]string
	namesLoaded bool
	mapping     map[string]LabelID
	destLoaded  bool
	created     []string
}

// NewMirror returns a Mirror namespacing archive labels under account.
// In dry-run mode lookups still happen but creates are synthesized.
func NewMirror(source, dest Client, limiter Limiter, account string, dryRun bool) *Mirror {
	return &Mirror{
		source:  source,
		dest:    dest,
		limiter: limiter,
		account: account,
		dryRun:  dryRun,
		names:   map[LabelID]string{},
		mapping: map[string]LabelID{},
	}
}

// MirrorName returns the archive-side name for a source label,
// namespaced to keep provenance visible and avoid collisions with the
// archive account's own labels.
func (m *Mirror) MirrorName(name string) string {
	return m.account + "/" + name
}

// ResolveName translates a source label ID to its display name.
// Resolution is best effort: on any failure the raw ID is returned and
// the transfer proceeds.
func (m *Mirror) ResolveName(ctx context.Context, id LabelID) string {
	if !m.namesLoaded {
		if err := m.limiter.Wait(ctx); err != nil {
			return string(id)
		}
		labels, err := m.source.ListLabels(ctx)
		if err != nil {
			log.Warnf("listing source labels: %v", err)
		}
		for _, l := range labels {
			m.names[l.ID] = l.Name
		}
		// One attempt per run; per-ID lookups below cover any misses.
		m.namesLoaded = true
	}
	if name, ok := m.names[id]; ok {
		return name
	}

	// Fall back to a single per-ID lookup, memoized either way.
	if err := m.limiter.Wait(ctx); err != nil {
		return string(id)
	}
	label, err := m.source.GetLabel(ctx, id)
	if err != nil {
		log.Warnf("resolving label %s: %v", id, err)
		m.names[id] = string(id)
		return string(id)
	}
	m.names[id] = label.Name
	return label.Name
}

// GetOrCreate returns the archive label ID for name, creating the
// label on first use. At most one remote round trip happens per
// distinct name per run: the archive's existing labels are listed once
// and each miss costs exactly one create call.
func (m *Mirror) GetOrCreate(ctx context.Context, name string) (LabelID, error) {
	if id, ok := m.mapping[name]; ok {
		return id, nil
	}

	if !m.destLoaded {
		if err := m.limiter.Wait(ctx); err != nil {
			return "", err
		}
		labels, err := m.dest.ListLabels(ctx)
		if err != nil {
			return "", errors.Wrap(err, "listing archive labels")
		}
		for _, l := range labels {
			if _, ok := m.mapping[l.Name]; !ok {
				m.mapping[l.Name] = l.ID
			}
		}
		m.destLoaded = true
		if id, ok := m.mapping[name]; ok {
			return id, nil
		}
	}

	if m.dryRun {
		id := LabelID("dryrun:" + name)
		m.mapping[name] = id
		m.created = append(m.created, name)
		log.Infof("dry-run: would create label %q", name)
		return id, nil
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return "", err
	}
	id, err := m.dest.CreateLabel(ctx, name)
	if err != nil {
		return "", errors.Wrapf(err, "creating label %q", name)
	}
	m.mapping[name] = id
	m.created = append(m.created, name)
	log.Infof("created archive label %q (%s)", name, id)
	return id, nil
}

// Created returns the archive label names created (or, in dry-run
// mode, that would have been created) so far, in creation order.
func (m *Mirror) Created() []string {
	return append([]string(nil), m.created...)
}
