package tagger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTag(t *testing.T) {
	tagger := Default()

	tests := []struct {
		text     string
		tags     []Tag
		residual string
	}{
		{
			text:     "Тест-полоски Accu-Chek Active 50 шт",
			tags:     []Tag{{Category: CategoryType, Name: "strips"}, {Category: CategoryPack, Name: "count", Value: "50"}},
			residual: "accu chek active",
		},
		{
			text:     "OneTouch Select lancets 100pcs",
			tags:     []Tag{{Category: CategoryType, Name: "lancets"}, {Category: CategoryPack, Name: "count", Value: "100"}},
			residual: "onetouch select",
		},
		{
			text:     "Контрольный раствор Сателлит 4 мл",
			tags:     []Tag{{Category: CategoryType, Name: "control_solution"}, {Category: CategoryUnit, Name: "ml", Value: "4"}},
			residual: "сателлит",
		},
		{
			text:     "Accu-Chek",
			tags:     nil,
			residual: "accu chek",
		},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			tags, residual := tagger.Tag(tt.text)
			assert.Equal(t, tt.tags, tags)
			assert.Equal(t, tt.residual, residual)
		})
	}
}

func TestRuleOrderMatters(t *testing.T) {
	tagger, err := New([]Rule{
		{Category: "type", Name: "first", Pattern: `abc`},
		{Category: "type", Name: "second", Pattern: `abc|def`},
	})
	require.NoError(t, err)

	tags, residual := tagger.Tag("abc def")
	assert.Equal(t, []Tag{{Category: "type", Name: "first"}, {Category: "type", Name: "second"}}, tags)
	assert.Equal(t, "", residual)
}

func TestNewRejectsBadRule(t *testing.T) {
	_, err := New([]Rule{{Category: "type", Name: "bad", Pattern: "[z-a]"}})
	require.Error(t, err)
}
