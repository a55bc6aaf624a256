// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

// Package scanner detects prompt-injection phrasing and credentials in
// conversation text. Detection never changes what the model sees; callers
// decide whether to log a finding or redact it from what they persist.
package scanner

import (
	"regexp"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
)

// Stage identifies which text a rule applies to.
type Stage string

const (
	// StageInput is the end user's message.
	StageInput Stage = "input"
	// StageTool is a tool server's output fed back to the model.
	StageTool Stage = "tool"
	// StageAudit is text about to be written to the audit log.
	StageAudit Stage = "audit"
)

func (s Stage) Valid() bool {
	switch s {
	case StageInput, StageTool, StageAudit:
		return true
	default:
		return false
	}
}

// Severity indicates how critical a detection is.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityHigh, SeverityMedium, SeverityLow:
		return true
	default:
		return false
	}
}

// Result holds the outcome of a scan.
type Result struct {
	Threat  bool
	Matches []Match
	// Content is the normalized text the match offsets refer to.
	Content string
}

// Rules returns the distinct rule names that matched, in match order.
func (r Result) Rules() []string {
	var names []string
	for _, m := range r.Matches {
		if !slices.Contains(names, m.Rule) {
			names = append(names, m.Rule)
		}
	}
	return names
}

// Match is a single pattern hit. Location and Length are byte offsets into
// Result.Content.
type Match struct {
	Rule     string
	Location int
	Length   int
	Severity Severity
}

// Rule is a detection pattern bound to one stage.
type Rule struct {
	Stage    Stage
	Name     string
	Pattern  *regexp.Regexp
	Severity Severity
}

// DefaultMaxContentLength bounds the text a Scanner inspects (1MB).
const DefaultMaxContentLength = 1 << 20

// Scanner matches text against compiled rules. It is safe for concurrent
// use.
type Scanner struct {
	rules            []Rule
	maxContentLength int
}

// New creates a scanner with the given rules.
func New(rules []Rule) (*Scanner, error) {
	for i, r := range rules {
		if r.Pattern == nil {
			return nil, aoserr.Errorf(aoserr.CodeSecurityScannerFailure, "rule %d (%s) has nil pattern", i, r.Name)
		}
		if !r.Stage.Valid() {
			return nil, aoserr.Errorf(aoserr.CodeSecurityScannerFailure, "rule %d (%s) has invalid stage %q", i, r.Name, r.Stage)
		}
		if r.Name == "" {
			return nil, aoserr.Errorf(aoserr.CodeSecurityScannerFailure, "rule %d has empty name", i)
		}
		if !r.Severity.Valid() {
			return nil, aoserr.Errorf(aoserr.CodeSecurityScannerFailure, "rule %d (%s) has invalid severity %q", i, r.Name, r.Severity)
		}
	}
	return &Scanner{rules: rules, maxContentLength: DefaultMaxContentLength}, nil
}

var (
	defaultOnce    sync.Once
	defaultScanner *Scanner
)

// Default returns a shared scanner built from DefaultRules.
func Default() *Scanner {
	defaultOnce.Do(func() {
		s, err := New(DefaultRules())
		if err != nil {
			panic(err)
		}
		defaultScanner = s
	})
	return defaultScanner
}

// invisibleCharReplacer strips zero-width and other invisible characters
// used to split trigger phrases.
var invisibleCharReplacer = strings.NewReplacer(
	"\u200b", "", // zero-width space
	"\u200c", "", // zero-width non-joiner
	"\u200d", "", // zero-width joiner
	"\ufeff", "", // BOM
	"\u00ad", "", // soft hyphen
	"\u034f", "", // combining grapheme joiner
	"\u061c", "", // Arabic letter mark
	"\u180e", "", // Mongolian vowel separator
	"\u2060", "", // word joiner
	"\u2061", "",
	"\u2062", "",
	"\u2063", "",
	"\u2064", "",
)

// normalize applies NFKC after stripping invisible characters so that
// full-width and compatibility forms match the ASCII patterns.
func normalize(s string) string {
	return norm.NFKC.String(invisibleCharReplacer.Replace(s))
}

// Scan checks content against the rules for stage.
func (s *Scanner) Scan(content string, stage Stage) (Result, error) {
	if !stage.Valid() {
		return Result{}, aoserr.Errorf(aoserr.CodeSecurityScannerFailure, "invalid scan stage %q", stage)
	}

	content = normalize(content)
	if len(content) > s.maxContentLength {
		return Result{Threat: true, Content: content, Matches: []Match{{
			Rule:     "content_too_large",
			Length:   len(content),
			Severity: SeverityHigh,
		}}}, nil
	}

	result := Result{Content: content}
	for _, rule := range s.rules {
		if rule.Stage != stage {
			continue
		}
		for _, loc := range rule.Pattern.FindAllStringIndex(content, -1) {
			result.Threat = true
			result.Matches = append(result.Matches, Match{
				Rule:     rule.Name,
				Location: loc[0],
				Length:   loc[1] - loc[0],
				Severity: rule.Severity,
			})
		}
	}
	return result, nil
}

// Redact returns content with every match for stage replaced by
// [REDACTED]. Content that does not match comes back unchanged, without
// normalization.
func (s *Scanner) Redact(content string, stage Stage) string {
	res, err := s.Scan(content, stage)
	if err != nil || !res.Threat {
		return content
	}
	if len(res.Matches) == 1 && res.Matches[0].Rule == "content_too_large" {
		return content
	}
	return redact(res.Content, res.Matches)
}

// redact replaces matched regions with [REDACTED], merging overlaps.
func redact(content string, matches []Match) string {
	sorted := slices.DeleteFunc(slices.Clone(matches), func(m Match) bool {
		return m.Location < 0 || m.Length < 0
	})
	if len(sorted) == 0 {
		return content
	}
	slices.SortFunc(sorted, func(a, b Match) int { return a.Location - b.Location })

	type span struct{ start, end int }
	spans := []span{{sorted[0].Location, sorted[0].Location + sorted[0].Length}}
	for _, m := range sorted[1:] {
		last := &spans[len(spans)-1]
		end := m.Location + m.Length
		if m.Location <= last.end {
			last.end = max(last.end, end)
		} else {
			spans = append(spans, span{m.Location, end})
		}
	}

	var b strings.Builder
	b.Grow(len(content))
	pos := 0
	for _, sp := range spans {
		b.WriteString(content[pos:sp.start])
		b.WriteString("[REDACTED]")
		pos = min(sp.end, len(content))
	}
	b.WriteString(content[pos:])
	return b.String()
}
