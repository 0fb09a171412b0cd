// Package escalation scores a tick's outcome against fixed rules and
// decides whether, and with what message, to hand it to the assistant
// gateway.
package escalation

import "strings"

// Threshold is the minimum score for selective mode to escalate.
const Threshold = 3

// Mode is the escalation aggressiveness level.
type Mode string

const (
	ModeOff       Mode = "off"
	ModeSelective Mode = "selective"
	ModeFocus     Mode = "focus"
	ModeRich      Mode = "rich"
)

var errorWords = []string{
	"error", "failed", "failure", "exception", "crash", "traceback",
	"typeerror", "referenceerror", "syntaxerror", "cannot read",
	"undefined is not", "exit code", "segfault", "panic", "fatal", "enoent",
}

var questionWords = []string{
	"how do i", "how to", "what if", "why is", "help me", "not working",
	"stuck", "confused", "any ideas", "suggestions",
}

var codeIssueWords = []string{
	"todo", "fixme", "hack", "workaround", "deprecated",
}

const appChurnThreshold = 4

// Reason names one contributing signal.
type Reason string

const (
	ReasonError     Reason = "error"
	ReasonQuestion  Reason = "question"
	ReasonCodeIssue Reason = "code_issue"
	ReasonAppChurn  Reason = "app_churn"
)

// Score is the scorer's additive result.
type Score struct {
	Total   int      `json:"total"`
	Reasons []Reason `json:"reasons"`
}

// ScoreInput is everything the deterministic scorer reads.
type ScoreInput struct {
	Digest        string
	AudioTexts    []string
	AppHistoryLen int
}

// ComputeScore applies the fixed rule table; each category contributes at
// most once regardless of how many of its keywords match.
func ComputeScore(in ScoreInput) Score {
	digestLower := strings.ToLower(in.Digest)

	var score Score
	if containsAny(digestLower, errorWords) {
		score.Total += 3
		score.Reasons = append(score.Reasons, ReasonError)
	}
	if anyTextContains(in.AudioTexts, questionWords) {
		score.Total += 2
		score.Reasons = append(score.Reasons, ReasonQuestion)
	}
	if containsAny(digestLower, codeIssueWords) {
		score.Total += 1
		score.Reasons = append(score.Reasons, ReasonCodeIssue)
	}
	if in.AppHistoryLen >= appChurnThreshold {
		score.Total += 1
		score.Reasons = append(score.Reasons, ReasonAppChurn)
	}
	return score
}

func containsAny(haystackLower string, words []string) bool {
	for _, w := range words {
		if strings.Contains(haystackLower, w) {
			return true
		}
	}
	return false
}

func anyTextContains(texts []string, words []string) bool {
	for _, t := range texts {
		if containsAny(strings.ToLower(t), words) {
			return true
		}
	}
	return false
}

// DecisionInput is everything the pure decision gate reads.
type DecisionInput struct {
	Mode               Mode
	NowMS              int64
	LastEscalationTS   int64
	CooldownMS         int64
	HUD                string
	Digest             string
	LastEscalatedDigest string
	Score              Score
}

// Decision is the gate's verdict.
type Decision struct {
	Escalate bool
	Score    Score
}

// Decide is a pure function: mode, cooldown, idle-HUD, and
// mode-dependent scoring rules, in that order.
func Decide(in DecisionInput) Decision {
	if in.Mode == ModeOff {
		return Decision{Escalate: false, Score: in.Score}
	}
	if in.LastEscalationTS > 0 && in.NowMS-in.LastEscalationTS < in.CooldownMS {
		return Decision{Escalate: false, Score: in.Score}
	}
	if in.HUD == "Idle" || in.HUD == "—" {
		return Decision{Escalate: false, Score: in.Score}
	}
	if in.Mode == ModeFocus || in.Mode == ModeRich {
		return Decision{Escalate: true, Score: in.Score}
	}
	// selective
	if in.Digest == in.LastEscalatedDigest {
		return Decision{Escalate: false, Score: in.Score}
	}
	return Decision{Escalate: in.Score.Total >= Threshold, Score: in.Score}
}
