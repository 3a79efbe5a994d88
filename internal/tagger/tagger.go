// Package tagger parses free text into category tags with an ordered rule
// table. Each rule runs against what the previous rules left, and every
// matched span is removed before the next rule runs.
package tagger

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/callmeahab/catalog-search/internal/textnorm"
)

// Tag categories.
const (
	CategoryType = "type"
	CategoryPack = "pack"
	CategoryUnit = "volume"
)

// Rule tags text matching Pattern. When the pattern has a capture group the
// first group becomes the tag value.
type Rule struct {
	Category string
	Name     string
	Pattern  string
}

// Tag is one recognized fragment.
type Tag struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	Value    string `json:"value,omitempty"`
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// Tagger applies rules in table order. It is immutable once built.
type Tagger struct {
	rules []compiledRule
}

// New compiles rules, keeping their order.
func New(rules []Rule) (*Tagger, error) {
	t := &Tagger{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("tag rule %d (%s/%s): %w", i, r.Category, r.Name, err)
		}
		t.rules = append(t.rules, compiledRule{Rule: r, re: re})
	}
	return t, nil
}

// Default returns a tagger over DefaultRules.
func Default() *Tagger {
	t, err := New(DefaultRules())
	if err != nil {
		panic(err)
	}
	return t
}

// Tag returns the tags found in text, in rule order, and the unified text
// left after removing every matched span.
func (t *Tagger) Tag(text string) ([]Tag, string) {
	work := textnorm.Unify(text)
	var tags []Tag
	for _, r := range t.rules {
		m := r.re.FindStringSubmatch(work)
		if m == nil {
			continue
		}
		tag := Tag{Category: r.Category, Name: r.Name}
		if len(m) > 1 {
			tag.Value = m[1]
		}
		tags = append(tags, tag)
		work = strings.Join(strings.Fields(r.re.ReplaceAllString(work, " ")), " ")
	}
	return tags, work
}

// DefaultRules is the built-in table for diabetic supplies.
func DefaultRules() []Rule {
	return []Rule{
		{CategoryType, "control_solution", `контрольн[а-я]* раствор[а-я]*|control solution`},
		{CategoryType, "strips", `тест ?полоск[а-я]*|полоск[а-я]*|test ?strips?|\bstrips?\b`},
		{CategoryType, "lancets", `ланцет[а-я]*|\blancets?\b`},
		{CategoryType, "meter", `глюкометр[а-я]*|\b(?:gluco)?meters?\b`},
		{CategoryType, "pen_needles", `игл[аы]? для шприц ?руч[а-я]*|иглы?|\bneedles?\b`},
		{CategoryType, "pen", `шприц ?ручк[а-я]*|\bpens?\b`},
		{CategoryType, "sensor", `сенсор[а-я]*|датчик[а-я]*|\bsensors?\b`},
		{CategoryPack, "count", `\b(\d+) ?(?:шт|штук|pcs|pc)`},
		{CategoryUnit, "ml", `\b(\d+) ?(?:мл|ml\b)`},
	}
}
