package prompt_test

import (
	"testing"

	"github.com/aretw0/sqlgraph/internal/prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_SystemAndUser(t *testing.T) {
	p, err := prompt.Build(prompt.Rewrite, map[string]any{
		"Query":    "上月华东区销售额",
		"Evidence": []string{"华东 = 上海, 江苏, 浙江"},
	})
	require.NoError(t, err)
	assert.Contains(t, p.System, "UNSUPPORTED")
	assert.Contains(t, p.User, "上月华东区销售额")
	assert.Contains(t, p.User, "- 华东 = 上海, 江苏, 浙江")
}

func TestBuild_UserOnly(t *testing.T) {
	p, err := prompt.Build(prompt.PythonAnalyze, map[string]any{"Query": "q", "Instruction": "i", "Output": "42"})
	require.NoError(t, err)
	assert.Empty(t, p.System)
	assert.Contains(t, p.User, "42")
}

func TestBuild_RepairReasonKinds(t *testing.T) {
	data := map[string]any{"Dialect": "mysql", "Query": "q", "Instruction": "i", "SQL": "SELECT 1", "Reason": "不通过：聚合口径错误", "ReasonKind": "semantic", "Schema": "", "Evidence": ""}
	p, err := prompt.Build(prompt.SQLRepair, data)
	require.NoError(t, err)
	assert.Contains(t, p.User, "Reviewer notes")
	assert.Contains(t, p.User, "不通过：聚合口径错误")

	data["ReasonKind"] = "execution_error"
	p, err = prompt.Build(prompt.SQLRepair, data)
	require.NoError(t, err)
	assert.Contains(t, p.User, "database rejected")
}

func TestBuild_UnknownStage(t *testing.T) {
	_, err := prompt.Build("nope", nil)
	assert.Error(t, err)
}
