package triage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	waLog "go.mau.fi/whatsmeow/util/log"

	"syncnexus/internal/data/store"
	"syncnexus/internal/infra/config"
	"syncnexus/internal/service/agent"
	"syncnexus/internal/service/journal"
)

// Scorer rates a message body.
type Scorer interface {
	Score(ctx context.Context, body string, settings config.TriageConfig) (*agent.Verdict, error)
}

// Admissible is the admission policy: the score must reach the threshold
// (inclusive) and the model must say a reply is warranted.
func Admissible(score, threshold int, shouldReply bool) bool {
	return score >= threshold && shouldReply
}

// Result is the outcome of analyzing one message.
type Result struct {
	Verdict  *agent.Verdict     `json:"verdict"`
	Admitted bool               `json:"admitted"`
	Entry    *store.TriageEntry `json:"entry,omitempty"`
}

// Analyzer scores messages and admits qualifying ones to the queue.
type Analyzer struct {
	scorer   Scorer
	queue    *Queue
	analyses *store.AnalysisStore
	journal  *journal.Journal
	log      waLog.Logger
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(scorer Scorer, queue *Queue, analyses *store.AnalysisStore, j *journal.Journal, log waLog.Logger) *Analyzer {
	return &Analyzer{
		scorer:   scorer,
		queue:    queue,
		analyses: analyses,
		journal:  j,
		log:      log.Sub("Analyzer"),
	}
}

// Analyze scores msg once and admits it when the policy allows. Failures
// leave the queue untouched and are never retried here.
func (a *Analyzer) Analyze(ctx context.Context, msg *store.Message, settings config.TriageConfig) (*Result, error) {
	a.journal.AI("Analyzing signal from %s...", msg.SenderName)

	verdict, err := a.scorer.Score(ctx, msg.Body, settings)
	if err != nil {
		a.journal.Error(err, "Analysis failed")
		return nil, err
	}

	admitted := Admissible(verdict.Score, settings.Threshold, verdict.ShouldReply)
	if err := a.analyses.Put(&store.Analysis{
		MessageID: msg.ID,
		Score:     verdict.Score,
		Intent:    verdict.Intent,
		Admitted:  admitted,
	}); err != nil {
		a.log.Warnf("Failed to record analysis of %s: %v", msg.ID, err)
	}

	result := &Result{Verdict: verdict}
	if !admitted {
		a.journal.Info("Signal from %s scored %d (threshold %d), not queued", msg.SenderName, verdict.Score, settings.Threshold)
		return result, nil
	}

	entry, added, err := a.queue.Admit(&store.TriageEntry{
		ID:         "q-" + uuid.NewString(),
		MessageID:  msg.ID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		GroupJID:   msg.ChatJID,
		Body:       msg.Body,
		Score:      verdict.Score,
		Intent:     verdict.Intent,
		Reasoning:  verdict.Reasoning,
		GroupDraft: verdict.GroupDraft,
		DMDraft:    verdict.DMDraft,
		Instance:   msg.Instance,
	})
	if err != nil {
		a.journal.Error(err, "Failed to queue signal from %s", msg.SenderName)
		return result, fmt.Errorf("admit %s: %w", msg.ID, err)
	}

	result.Entry = entry
	result.Admitted = added
	if added {
		a.journal.Success("Triage created (%d)", verdict.Score)
	} else {
		a.journal.Info("Message %s already has an open triage entry", msg.ID)
	}
	return result, nil
}
