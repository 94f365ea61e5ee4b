// Package agent is the scoring engine: it turns messages and message
// histories into structured verdicts using a pluggable model backend.
package agent

import (
	"context"
	"fmt"
	"strings"

	waLog "go.mau.fi/whatsmeow/util/log"

	"syncnexus/internal/infra/config"
	"syncnexus/internal/service/agent/llm"
)

// minPersonaLength is the shortest persona accepted before the default is used.
const minPersonaLength = 20

// Verdict is the scored outcome for one message.
type Verdict struct {
	Score       int    `json:"score"`
	Intent      string `json:"intent"`
	Reasoning   string `json:"reasoning"`
	ShouldReply bool   `json:"shouldReply"`
	GroupDraft  string `json:"groupDraft"`
	DMDraft     string `json:"dmDraft"`
}

// Profile is the identity analysis of a contact.
type Profile struct {
	Role     string `json:"role"`
	Industry string `json:"industry"`
	Summary  string `json:"summary"`
	Score    int    `json:"score"`
}

// Service scores messages and profiles contacts.
type Service struct {
	backend llm.Backend
	log     waLog.Logger
}

// NewService creates a scoring engine on top of backend.
func NewService(backend llm.Backend, log waLog.Logger) *Service {
	return &Service{
		backend: backend,
		log:     log.Sub("Agent"),
	}
}

// Provider returns the backend's provider name.
func (s *Service) Provider() string {
	return s.backend.Name()
}

// EffectivePersona returns persona, or the built-in default when persona is
// blank or too short to be a real instruction.
func EffectivePersona(persona string) string {
	p := strings.TrimSpace(persona)
	if len([]rune(p)) < minPersonaLength {
		return config.DefaultPersona
	}
	return p
}

// Score asks the model to rate a message body and draft replies.
func (s *Service) Score(ctx context.Context, body string, settings config.TriageConfig) (*Verdict, error) {
	persona := EffectivePersona(settings.Persona)
	req := llm.Request{
		System: persona,
		Prompt: buildScorePrompt(persona, settings.ScoringRules, settings.DraftStyle, body),
		JSON:   true,
	}

	text, _, err := s.backend.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("score message: %w", err)
	}
	verdict, err := parseVerdict(text)
	if err != nil {
		s.log.Warnf("Discarding malformed verdict from %s: %v", s.backend.Name(), err)
		return nil, err
	}
	return verdict, nil
}

// Profile asks the model for an identity profile built from a message history.
func (s *Service) Profile(ctx context.Context, persona, name, history string) (*Profile, error) {
	persona = EffectivePersona(persona)
	req := llm.Request{
		System: persona,
		Prompt: buildProfilePrompt(persona, name, history),
		JSON:   true,
	}

	text, _, err := s.backend.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("profile contact: %w", err)
	}
	profile, err := parseProfile(text)
	if err != nil {
		s.log.Warnf("Discarding malformed profile of %s from %s: %v", name, s.backend.Name(), err)
		return nil, err
	}
	return profile, nil
}
