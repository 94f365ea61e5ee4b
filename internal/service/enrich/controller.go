// Package enrich decides per contact whether an identity-analysis call is
// worth its cost, runs it, and records the result.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	waLog "go.mau.fi/whatsmeow/util/log"

	"syncnexus/internal/data/store"
	"syncnexus/internal/infra/config"
	"syncnexus/internal/infra/fault"
	"syncnexus/internal/service/agent"
	"syncnexus/internal/service/agent/llm"
	"syncnexus/internal/service/journal"
)

// historyFetchLimit caps how many messages are read before truncation.
const historyFetchLimit = 500

// Profiler produces identity profiles from message history.
type Profiler interface {
	Profile(ctx context.Context, persona, name, history string) (*agent.Profile, error)
	Provider() string
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the wall-clock Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Outcome describes what a single enrichment did.
type Outcome struct {
	Contact *store.Contact `json:"contact"`
	// Skipped is true when the contact had no activity and no force flag.
	Skipped bool `json:"skipped"`
}

// BatchResult summarizes a batch run.
type BatchResult struct {
	Enriched int `json:"enriched"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
	Pauses   int `json:"pauses"`
}

// Controller runs the per-contact enrichment state machine:
// unseen -> evaluated (inactive, no call) or enriching -> enriched.
type Controller struct {
	contacts *store.ContactStore
	messages *store.MessageStore
	profiler Profiler
	cfg      config.EnrichmentConfig
	sleep    Sleeper
	now      func() time.Time
	journal  *journal.Journal
	log      waLog.Logger
}

// NewController creates a Controller.
func NewController(
	contacts *store.ContactStore,
	messages *store.MessageStore,
	profiler Profiler,
	cfg config.EnrichmentConfig,
	j *journal.Journal,
	log waLog.Logger,
) *Controller {
	return &Controller{
		contacts: contacts,
		messages: messages,
		profiler: profiler,
		cfg:      cfg,
		sleep:    Sleep,
		now:      time.Now,
		journal:  j,
		log:      log.Sub("Enrich"),
	}
}

// SetSleeper replaces the pacing sleeper.
func (c *Controller) SetSleeper(s Sleeper) {
	c.sleep = s
}

// Enrich evaluates one contact. Without force, a contact with no messages is
// marked evaluated and no model call is made. Silent calls keep the activity
// log quiet but still persist results.
func (c *Controller) Enrich(ctx context.Context, contactID string, force, silent bool, persona string) (*Outcome, error) {
	contact, err := c.contacts.Get(contactID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) && !silent {
			c.journal.Error(err, "Contact %s not found", contactID)
		}
		return nil, fmt.Errorf("enrich %s: %w", contactID, err)
	}

	if !contact.Active() && !force {
		if contact.State == store.StateUnseen {
			if err := c.contacts.SetState(contactID, store.StateEvaluated); err != nil {
				return nil, fmt.Errorf("enrich %s: %w", contactID, err)
			}
			contact.State = store.StateEvaluated
		}
		c.log.Infof("Skipping deep enrichment for %s: no messages", contact.DisplayName)
		if !silent {
			c.journal.Info("Skipped deep enrichment for %s: no activity", contact.DisplayName)
		}
		return &Outcome{Contact: contact, Skipped: true}, nil
	}

	prior := contact.State
	if err := c.contacts.SetState(contactID, store.StateEnriching); err != nil {
		return nil, fmt.Errorf("enrich %s: %w", contactID, err)
	}

	history, err := c.history(contactID)
	if err != nil {
		c.revert(contactID, prior)
		return nil, fmt.Errorf("enrich %s: %w", contactID, err)
	}

	if !silent {
		c.journal.AI("Enriching %s (~%d tokens of history)...", contact.DisplayName, llm.EstimateTokens(history))
	}

	profile, err := c.profiler.Profile(ctx, persona, contact.DisplayName, history)
	if err != nil {
		c.revert(contactID, prior)
		c.fail(err, silent, contact.DisplayName)
		return nil, fmt.Errorf("enrich %s: %w", contactID, err)
	}

	// SaveEnrichment re-reads the contact inside its transaction, so changes
	// made while the model call was in flight are kept.
	at := c.now()
	provider := c.profiler.Provider()
	updated, err := c.contacts.SaveEnrichment(contactID, &store.Enrichment{
		Role:      profile.Role,
		Industry:  profile.Industry,
		Summary:   profile.Summary,
		Score:     profile.Score,
		Provider:  provider,
		UpdatedAt: at,
	}, store.ResearchEntry{Date: at, Provider: provider, Summary: profile.Summary})
	if err != nil {
		c.revert(contactID, prior)
		c.fail(err, silent, contact.DisplayName)
		return nil, fmt.Errorf("enrich %s: %w", contactID, err)
	}

	if !silent {
		c.journal.Success("Enriched: %s", contact.DisplayName)
	} else {
		c.log.Infof("Enriched %s (score %d)", contact.DisplayName, profile.Score)
	}
	return &Outcome{Contact: updated}, nil
}

// Batch enriches contacts strictly one after another, pausing after every
// PaceEvery-th contact. Per-contact failures are logged and skipped; a
// configuration error ends the batch since every later call would hit it too.
func (c *Controller) Batch(ctx context.Context, contactIDs []string, persona string) (*BatchResult, error) {
	res := &BatchResult{}
	if len(contactIDs) == 0 {
		return res, nil
	}
	every := c.cfg.PaceEvery
	if every <= 0 {
		every = 1
	}

	c.journal.AI("Auto-enrichment batch: %d targets", len(contactIDs))
	for i, id := range contactIDs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		out, err := c.Enrich(ctx, id, false, true, persona)
		switch {
		case fault.Is(err, fault.KindConfig):
			res.Failed++
			c.journal.Error(err, "Auto-enrichment stopped after %d of %d contacts", i, len(contactIDs))
			return res, err
		case err != nil:
			res.Failed++
			c.log.Warnf("Batch enrichment of %s failed: %v", id, err)
		case out.Skipped:
			res.Skipped++
		default:
			res.Enriched++
		}

		if (i+1)%every == 0 {
			res.Pauses++
			if err := c.sleep(ctx, c.cfg.PaceDelay.Std()); err != nil {
				return res, err
			}
		}
	}

	c.journal.Success("Batch enrichment completed (%d enriched, %d skipped, %d failed)", res.Enriched, res.Skipped, res.Failed)
	return res, nil
}

func (c *Controller) history(contactID string) (string, error) {
	msgs, err := c.messages.ListBySender(contactID, historyFetchLimit)
	if err != nil {
		return "", fmt.Errorf("failed to load history: %w", err)
	}
	bodies := make([]string, 0, len(msgs))
	for _, m := range msgs {
		bodies = append(bodies, m.Body)
	}
	return TruncateRunes(strings.Join(bodies, "\n"), c.cfg.MaxContextChars), nil
}

func (c *Controller) revert(contactID string, prior store.EnrichmentState) {
	if err := c.contacts.SetState(contactID, prior); err != nil {
		c.log.Warnf("Failed to restore state of %s: %v", contactID, err)
	}
}

func (c *Controller) fail(err error, silent bool, name string) {
	if silent {
		c.log.Warnf("Enrichment of %s failed: %v", name, err)
		return
	}
	c.journal.Error(err, "Enrichment error for %s", name)
}

// TruncateRunes cuts s to at most max characters without splitting a rune.
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
