package services

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
)

func TestAnalyzeDetectsRequiredActions(t *testing.T) {
	analyzer := NewPermissionAnalyzer(nil)

	code := `
resp = s3.get_object(Bucket=bucket, Key=key)
s3.put_object(Bucket=bucket, Key=out, Body=data)
secrets.get_secret_value(SecretId=name)
`
	analysis := analyzer.Analyze(code, domain.PolicyDocument{})

	assert.Equal(t, []string{
		"s3:GetObject",
		"s3:PutObject",
		"secretsmanager:GetSecretValue",
	}, analysis.RequiredActions)
	assert.Equal(t, analysis.RequiredActions, analysis.MissingActions)
	assert.False(t, analysis.Clean())
}

func TestAnalyzeDiffsAgainstPolicy(t *testing.T) {
	analyzer := NewPermissionAnalyzer(nil)

	code := "s3.put_object(Bucket=b, Key=k)\nsqs.send_message(QueueUrl=q, MessageBody=m)\n"
	policy := domain.PolicyDocument{
		Version:        "2012-10-17",
		AllowedActions: []string{"s3:PutObject"},
	}

	analysis := analyzer.Analyze(code, policy)
	assert.Equal(t, []string{"s3:PutObject", "sqs:SendMessage"}, analysis.RequiredActions)
	assert.Equal(t, []string{"sqs:SendMessage"}, analysis.MissingActions)
}

func TestAnalyzeWildcardPolicy(t *testing.T) {
	analyzer := NewPermissionAnalyzer(nil)

	code := "s3.put_object(Bucket=b, Key=k)\ns3.delete_object(Bucket=b, Key=k)\n"
	policy := domain.PolicyDocument{AllowedActions: []string{"s3:*"}}

	analysis := analyzer.Analyze(code, policy)
	assert.Len(t, analysis.RequiredActions, 2)
	assert.Empty(t, analysis.MissingActions)
	assert.True(t, analysis.Clean())
	assert.Empty(t, analysis.SuggestedPatch)
}

func TestAnalyzeCleanCode(t *testing.T) {
	analyzer := NewPermissionAnalyzer(nil)

	analysis := analyzer.Analyze("func add(a, b int) int { return a + b }", domain.PolicyDocument{})
	assert.Empty(t, analysis.RequiredActions)
	assert.True(t, analysis.Clean())
}

func TestSuggestedPatchIsValidJSON(t *testing.T) {
	analyzer := NewPermissionAnalyzer(nil)

	code := "dynamodb.put_item(TableName=t, Item=i)\nlambda_client.invoke(FunctionName=f)\n"
	analysis := analyzer.Analyze(code, domain.PolicyDocument{})
	require.NotEmpty(t, analysis.SuggestedPatch)

	var patch struct {
		Effect   string   `json:"Effect"`
		Action   []string `json:"Action"`
		Resource string   `json:"Resource"`
	}
	require.NoError(t, json.Unmarshal([]byte(analysis.SuggestedPatch), &patch))
	assert.Equal(t, "Allow", patch.Effect)
	assert.Equal(t, analysis.MissingActions, patch.Action)
	assert.Equal(t, "*", patch.Resource)
}

func TestAnalyzeCustomRules(t *testing.T) {
	analyzer := NewPermissionAnalyzer([]PermissionRule{
		{Pattern: regexp.MustCompile(`\bkv\.Get\(`), Action: "kv:Read"},
	})

	analysis := analyzer.Analyze("v, err := kv.Get(ctx, key)", domain.PolicyDocument{})
	assert.Equal(t, []string{"kv:Read"}, analysis.RequiredActions)

	// Default-table patterns are inert under a custom table.
	analysis = analyzer.Analyze("s3.put_object(Bucket=b)", domain.PolicyDocument{})
	assert.Empty(t, analysis.RequiredActions)
}
