package playlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTargetValidate(t *testing.T) {
	t.Parallel()

	valid := Target{
		Name:          "WUOG Automation",
		BaseURL:       "https://spinitron.com/WUOG",
		ExportFolder:  "exports",
		Consolidation: ConsolidationMonthly,
		TimeFilter:    &TimeFilter{StartHour: 22, EndHour: 6},
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Target)
	}{
		{name: "missing name", mutate: func(t *Target) { t.Name = " " }},
		{name: "missing url", mutate: func(t *Target) { t.BaseURL = "" }},
		{name: "unknown consolidation", mutate: func(t *Target) { t.Consolidation = "weekly" }},
		{name: "missing folder", mutate: func(t *Target) { t.ExportFolder = "" }},
		{name: "hour out of range", mutate: func(t *Target) { t.TimeFilter = &TimeFilter{StartHour: 7, EndHour: 25} }},
		{name: "negative hour", mutate: func(t *Target) { t.TimeFilter = &TimeFilter{StartHour: -1, EndHour: 5} }},
		{name: "empty window", mutate: func(t *Target) { t.TimeFilter = &TimeFilter{StartHour: 7, EndHour: 7} }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			target := valid
			tc.mutate(&target)
			assert.Error(t, target.Validate())
		})
	}
}

func TestTargetWithoutConsolidationNeedsNoFolder(t *testing.T) {
	t.Parallel()

	target := Target{Name: "WRAS", BaseURL: "https://spinitron.com/WRAS", Consolidation: ConsolidationNone}
	assert.NoError(t, target.Validate())
}

func TestTargetFileSlug(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "WUOG_Automation_Light", Target{Name: "WUOG Automation Light"}.FileSlug())
	assert.Equal(t, "WUOG", Target{Name: "WUOG"}.FileSlug())
}

func TestPlayEventKey(t *testing.T) {
	t.Parallel()

	a := PlayEvent{ShowURL: "u", Artist: "ab", Song: "c"}
	b := PlayEvent{ShowURL: "u", Artist: "a", Song: "bc"}
	assert.NotEqual(t, a.Key(), b.Key())
	assert.Equal(t, a.Key(), PlayEvent{ShowURL: "u", Artist: "ab", Song: "c", Album: "other"}.Key())
}
