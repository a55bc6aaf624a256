// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package scanner

import (
	"regexp"
	"slices"
)

// DefaultRules returns the built-in rule set for every stage.
func DefaultRules() []Rule {
	return slices.Concat(InputRules(), ToolRules(), AuditRules())
}

// InputRules returns prompt-injection patterns for end-user messages.
func InputRules() []Rule {
	return []Rule{
		{
			Name:     "instruction_override",
			Pattern:  regexp.MustCompile(`(?i)(ignore|disregard|override|forget|do\s+not\s+follow)\s+(all\s+)?(previous|prior|above)\s+(instructions|prompts|rules)`),
			Stage:    StageInput,
			Severity: SeverityHigh,
		},
		{
			Name:     "role_confusion",
			Pattern:  regexp.MustCompile(`(?i)you\s+are\s+now\s+\w+[,.]?\s*(do|ignore|forget|disregard)`),
			Stage:    StageInput,
			Severity: SeverityHigh,
		},
		{
			Name:     "delimiter_abuse",
			Pattern:  regexp.MustCompile("(?i)```system\\b"),
			Stage:    StageInput,
			Severity: SeverityMedium,
		},
		{
			Name:     "new_task_injection",
			Pattern:  regexp.MustCompile(`(?i)(new\s+task:|from\s+now\s+on\s+you|pretend\s+(?:the\s+)?(?:above|previous)\s+(?:rules?|instructions?)\s+(?:do\s+not|don'?t)\s+exist)`),
			Stage:    StageInput,
			Severity: SeverityMedium,
		},
		{
			Name:     "system_block_injection",
			Pattern:  regexp.MustCompile(`(?i)(?:<\|?system\|?>|\[system\]|<<SYS>>)`),
			Stage:    StageInput,
			Severity: SeverityHigh,
		},
		{
			Name:     "system_prompt_extraction",
			Pattern:  regexp.MustCompile(`(?i)(reveal|print|repeat|show)\s+(me\s+)?(your|the)\s+(system\s+prompt|initial\s+instructions)`),
			Stage:    StageInput,
			Severity: SeverityMedium,
		},
	}
}

// ToolRules returns patterns for instructions smuggled into tool output.
func ToolRules() []Rule {
	return []Rule{
		{
			Name:     "system_prompt_leak",
			Pattern:  regexp.MustCompile(`(?im)^SYSTEM:\s`),
			Stage:    StageTool,
			Severity: SeverityHigh,
		},
		{
			Name:     "role_impersonation",
			Pattern:  regexp.MustCompile(`(?is)\[INST\].{0,1000}?\[/INST\]`),
			Stage:    StageTool,
			Severity: SeverityHigh,
		},
		{
			Name:     "instruction_override",
			Pattern:  regexp.MustCompile(`(?i)(ignore|disregard)\s+(all\s+)?(previous|prior|above)\s+(instructions|prompts|rules)`),
			Stage:    StageTool,
			Severity: SeverityHigh,
		},
	}
}

// AuditRules returns credential patterns removed before text is persisted.
func AuditRules() []Rule {
	specs := []struct {
		name     string
		pattern  string
		severity Severity
	}{
		{"aws_access_key", `AKIA[0-9A-Z]{16}`, SeverityHigh},
		{"anthropic_api_key", `sk-ant-(?:api|admin)\d{2}-[A-Za-z0-9_-]{20,}`, SeverityHigh},
		{"openai_api_key", `sk-proj-[A-Za-z0-9_-]{20,}`, SeverityHigh},
		{"openai_legacy_key", `sk-[A-Za-z0-9]{40,}`, SeverityMedium},
		{"openrouter_api_key", `sk-or-v1-[a-f0-9]{32,}`, SeverityHigh},
		{"google_api_key", `AIza[0-9A-Za-z_-]{35}`, SeverityHigh},
		{"github_pat", `gh[pousr]_[A-Za-z0-9]{36}`, SeverityHigh},
		{"github_fine_grained_pat", `github_pat_[A-Za-z0-9_]{22,}`, SeverityHigh},
		{"slack_token", `xox[bpas]-[A-Za-z0-9-]{10,}`, SeverityHigh},
		{"npm_token", `npm_[A-Za-z0-9]{36}`, SeverityHigh},
		{"vault_token", `hvs\.[A-Za-z0-9_-]{24,}`, SeverityHigh},
		{"bearer_token", `(?i)bearer\s+[A-Za-z0-9_\-.]{20,}`, SeverityHigh},
		{"pem_private_key", `-----BEGIN\s+(?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`, SeverityHigh},
		{"database_connection_string", `(?i)(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp)://[^\s:@/"']+:[^\s@"']+@[^\s/:"']+`, SeverityHigh},
		{"azure_connection_string", `(?i)AccountKey\s*=\s*[A-Za-z0-9+/=]{20,}`, SeverityHigh},
	}

	rules := make([]Rule, len(specs))
	for i, s := range specs {
		rules[i] = Rule{
			Stage:    StageAudit,
			Name:     s.name,
			Pattern:  regexp.MustCompile(s.pattern),
			Severity: s.severity,
		}
	}
	return rules
}
