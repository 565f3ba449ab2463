package services

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
)

// PermissionRule maps a static code pattern to the cloud-resource
// action invoking it requires. Rules are pattern matching only; scanned
// code is never executed.
type PermissionRule struct {
	// Pattern matches a call site in generated code.
	Pattern *regexp.Regexp

	// Action is the required permission (e.g. "s3:GetObject").
	Action string
}

// DefaultPermissionRules covers the common SDK call shapes. Callers can
// replace or extend the table; the exact heuristic is a policy choice,
// not a fixed formula.
func DefaultPermissionRules() []PermissionRule {
	mk := func(pattern, action string) PermissionRule {
		return PermissionRule{Pattern: regexp.MustCompile(pattern), Action: action}
	}
	return []PermissionRule{
		mk(`(?i)\bget_?object\b|\bdownload_?file\b`, "s3:GetObject"),
		mk(`(?i)\bput_?object\b|\bupload_?file\b`, "s3:PutObject"),
		mk(`(?i)\bdelete_?object\b`, "s3:DeleteObject"),
		mk(`(?i)\blist_?objects(_?v2)?\b`, "s3:ListBucket"),
		mk(`(?i)\bcreate_?bucket\b`, "s3:CreateBucket"),
		mk(`(?i)\bput_?item\b|\bbatch_?write_?item\b`, "dynamodb:PutItem"),
		mk(`(?i)\bget_?item\b|\bbatch_?get_?item\b`, "dynamodb:GetItem"),
		mk(`(?i)\bquery\b.*\btable_?name\b|\btable\b.*\.query\(`, "dynamodb:Query"),
		mk(`(?i)\bupdate_?item\b`, "dynamodb:UpdateItem"),
		mk(`(?i)\bdelete_?item\b`, "dynamodb:DeleteItem"),
		mk(`(?i)\bsns\b.*\bpublish\b|\bpublish\b.*\btopic_?arn\b`, "sns:Publish"),
		mk(`(?i)\bsend_?message\b`, "sqs:SendMessage"),
		mk(`(?i)\breceive_?message\b`, "sqs:ReceiveMessage"),
		mk(`(?i)\binvoke\b.*\bfunction_?name\b|\blambda\b.*\binvoke\b`, "lambda:InvokeFunction"),
		mk(`(?i)\bget_?secret_?value\b`, "secretsmanager:GetSecretValue"),
		mk(`(?i)\bput_?parameter\b`, "ssm:PutParameter"),
		mk(`(?i)\bget_?parameter[s]?\b`, "ssm:GetParameter"),
		mk(`(?i)\bput_?metric_?data\b`, "cloudwatch:PutMetricData"),
	}
}

// PermissionAnalyzer statically scans generated code for
// cloud-resource action references and diffs them against a current
// policy document.
type PermissionAnalyzer struct {
	rules []PermissionRule
}

// NewPermissionAnalyzer creates an analyzer. A nil rule slice selects
// the default table.
func NewPermissionAnalyzer(rules []PermissionRule) *PermissionAnalyzer {
	if rules == nil {
		rules = DefaultPermissionRules()
	}
	return &PermissionAnalyzer{rules: rules}
}

// Analyze scans code for required actions and diffs them against the
// policy. An empty diff is a valid, non-error outcome.
func (a *PermissionAnalyzer) Analyze(code string, policy domain.PolicyDocument) domain.PermissionAnalysis {
	required := make(map[string]bool)
	for _, rule := range a.rules {
		if rule.Pattern.MatchString(code) {
			required[rule.Action] = true
		}
	}

	analysis := domain.PermissionAnalysis{
		RequiredActions: sortedKeys(required),
	}

	for _, action := range analysis.RequiredActions {
		if !policy.Allows(action) {
			analysis.MissingActions = append(analysis.MissingActions, action)
		}
	}

	if len(analysis.MissingActions) > 0 {
		analysis.SuggestedPatch = suggestPatch(analysis.MissingActions)
	}

	return analysis
}

// suggestPatch renders a policy statement granting the missing actions.
func suggestPatch(actions []string) string {
	var b strings.Builder
	b.WriteString("{\n  \"Effect\": \"Allow\",\n  \"Action\": [\n")
	for i, action := range actions {
		sep := ","
		if i == len(actions)-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "    %q%s\n", action, sep)
	}
	b.WriteString("  ],\n  \"Resource\": \"*\"\n}")
	return b.String()
}

// sortedKeys returns the map keys in ascending order.
func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
