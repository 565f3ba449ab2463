package domain

// PolicyDocument is a caller-supplied access policy: the set of
// cloud-resource actions the current principal already holds.
type PolicyDocument struct {
	// Version is the policy language version, carried through verbatim.
	Version string

	// AllowedActions lists the actions the policy grants
	// (e.g. "s3:GetObject", "dynamodb:PutItem").
	AllowedActions []string
}

// Allows reports whether the policy grants the given action, honouring
// a trailing "*" wildcard in allowed entries.
func (p PolicyDocument) Allows(action string) bool {
	for _, a := range p.AllowedActions {
		if a == action {
			return true
		}
		if n := len(a); n > 0 && a[n-1] == '*' && len(action) >= n-1 && action[:n-1] == a[:n-1] {
			return true
		}
	}
	return false
}

// PermissionAnalysis is the result of statically scanning generated code
// for cloud-resource action references and diffing them against the
// caller's current policy. An empty diff is a valid, non-error outcome.
type PermissionAnalysis struct {
	// RequiredActions lists every action the generated code references,
	// sorted and de-duplicated.
	RequiredActions []string

	// MissingActions lists required actions the policy does not grant.
	MissingActions []string

	// SuggestedPatch is a policy fragment granting the missing actions;
	// empty when nothing is missing.
	SuggestedPatch string
}

// Clean returns true when the policy already covers every referenced
// action.
func (a PermissionAnalysis) Clean() bool {
	return len(a.MissingActions) == 0
}
