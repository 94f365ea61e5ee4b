// Package triage holds scored messages until a human deploys or dismisses them.
package triage

import (
	"context"
	"errors"
	"fmt"

	waLog "go.mau.fi/whatsmeow/util/log"

	"syncnexus/internal/data/store"
	"syncnexus/internal/infra/fault"
	"syncnexus/internal/service/journal"
)

// Channel selects which draft is deployed and where.
type Channel string

const (
	// ChannelDM sends the private draft to the sender and closes the entry on success.
	ChannelDM Channel = "dm"
	// ChannelGroup posts the group draft in the originating chat; the entry stays queued.
	ChannelGroup Channel = "group"
)

// ParseChannel validates a channel name.
func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelDM, ChannelGroup:
		return Channel(s), nil
	}
	return "", fmt.Errorf("unknown channel %q (want dm or group)", s)
}

// Sender delivers text through the messaging gateway.
type Sender interface {
	SendText(ctx context.Context, instance, recipient, text string) (bool, error)
}

// Queue is the admission-controlled set of entries awaiting action.
type Queue struct {
	entries  *store.TriageStore
	sender   Sender
	instance func(id int) string
	journal  *journal.Journal
	log      waLog.Logger
}

// NewQueue creates a Queue. instance maps an entry's instance id to a gateway instance name.
func NewQueue(entries *store.TriageStore, sender Sender, instance func(id int) string, j *journal.Journal, log waLog.Logger) *Queue {
	return &Queue{
		entries:  entries,
		sender:   sender,
		instance: instance,
		journal:  j,
		log:      log.Sub("Triage"),
	}
}

// Admit queues e. If the source message already has an open entry, that
// entry is returned with admitted=false and nothing is added.
func (q *Queue) Admit(e *store.TriageEntry) (*store.TriageEntry, bool, error) {
	err := q.entries.Insert(e)
	if errors.Is(err, store.ErrDuplicateEntry) {
		existing, getErr := q.entries.OpenForMessage(e.MessageID)
		if getErr != nil {
			return nil, false, fmt.Errorf("failed to load open entry for %s: %w", e.MessageID, getErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// List returns the open entries, most recent first.
func (q *Queue) List() ([]*store.TriageEntry, error) {
	return q.entries.ListQueued()
}

// Archive drops an entry without sending anything.
func (q *Queue) Archive(id string) error {
	if err := q.entries.Close(id, store.StatusArchived); err != nil {
		return fmt.Errorf("archive %s: %w", id, err)
	}
	q.journal.Info("Archived triage entry %s", id)
	return nil
}

// Deploy sends one of the entry's drafts. A failed send leaves the entry
// queued and is not retried. It reports whether the gateway confirmed delivery.
func (q *Queue) Deploy(ctx context.Context, id string, channel Channel) (bool, error) {
	e, err := q.entries.Get(id)
	if err != nil {
		return false, fmt.Errorf("deploy %s: %w", id, err)
	}
	if e.Status != store.StatusQueued {
		return false, fmt.Errorf("deploy %s: %w", id, store.ErrNotFound)
	}

	var recipient, text string
	switch channel {
	case ChannelDM:
		recipient, text = e.SenderID, e.DMDraft
	case ChannelGroup:
		recipient, text = e.GroupJID, e.GroupDraft
		if recipient == "" {
			recipient = e.SenderID
		}
	default:
		return false, fmt.Errorf("deploy %s: unknown channel %q", id, channel)
	}
	if text == "" {
		return false, fmt.Errorf("deploy %s: entry has no %s draft", id, channel)
	}

	q.journal.Info("Deploying to %s...", recipient)
	ok, err := q.sender.SendText(ctx, q.instance(e.Instance), recipient, text)
	if err != nil {
		q.journal.Error(err, "Send error")
		return false, err
	}
	if !ok {
		q.journal.Error(fault.Newf(fault.KindTransport, "triage.deploy", "gateway did not confirm delivery"), "Send failed")
		return false, nil
	}

	q.journal.Success("Delivered.")
	if channel == ChannelDM {
		if err := q.entries.Close(id, store.StatusDeployed); err != nil && !errors.Is(err, store.ErrNotFound) {
			return true, fmt.Errorf("delivered but failed to close %s: %w", id, err)
		}
	}
	return true, nil
}
