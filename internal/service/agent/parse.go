package agent

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"syncnexus/internal/infra/fault"
)

// cleanJSON strips markdown code fences and any prose around the outermost object.
func cleanJSON(text string) string {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	if start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}'); start >= 0 && end > start {
		s = s[start : end+1]
	}
	return s
}

func clampScore(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(100, v))))
}

type rawVerdict struct {
	Score       *float64 `json:"score"`
	Intent      string   `json:"intent"`
	Reasoning   string   `json:"reasoning"`
	ShouldReply *bool    `json:"shouldReply"`
	GroupDraft  string   `json:"groupDraft"`
	DMDraft     string   `json:"dmDraft"`
}

func parseVerdict(text string) (*Verdict, error) {
	const op = "agent.parseVerdict"

	var raw rawVerdict
	if err := json.Unmarshal([]byte(cleanJSON(text)), &raw); err != nil {
		return nil, fault.Wrap(fault.KindParse, op, fmt.Errorf("invalid verdict JSON: %w", err))
	}
	if raw.Score == nil {
		return nil, fault.Newf(fault.KindParse, op, "verdict is missing score")
	}
	if raw.ShouldReply == nil {
		return nil, fault.Newf(fault.KindParse, op, "verdict is missing shouldReply")
	}
	return &Verdict{
		Score:       clampScore(*raw.Score),
		Intent:      raw.Intent,
		Reasoning:   raw.Reasoning,
		ShouldReply: *raw.ShouldReply,
		GroupDraft:  raw.GroupDraft,
		DMDraft:     raw.DMDraft,
	}, nil
}

type rawProfile struct {
	Role     string   `json:"role"`
	Industry string   `json:"industry"`
	Summary  string   `json:"summary"`
	Score    *float64 `json:"score"`
}

func parseProfile(text string) (*Profile, error) {
	const op = "agent.parseProfile"

	var raw rawProfile
	if err := json.Unmarshal([]byte(cleanJSON(text)), &raw); err != nil {
		return nil, fault.Wrap(fault.KindParse, op, fmt.Errorf("invalid profile JSON: %w", err))
	}
	if raw.Score == nil {
		return nil, fault.Newf(fault.KindParse, op, "profile is missing score")
	}
	return &Profile{
		Role:     raw.Role,
		Industry: raw.Industry,
		Summary:  raw.Summary,
		Score:    clampScore(*raw.Score),
	}, nil
}
