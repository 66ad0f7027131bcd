// Package markup converts the small Markdown subset produced by the model
// (ATX headings and line breaks) into an HTML fragment.
package markup

import (
	"fmt"
	"regexp"
	"strings"
)

type headingRule struct {
	re   *regexp.Regexp
	repl string
}

// headingRules run from level 6 down to level 1 so a longer run of '#' is
// never read as a shorter heading with literal hashes.
var headingRules = buildHeadingRules()

func buildHeadingRules() []headingRule {
	rules := make([]headingRule, 0, 6)
	for level := 6; level >= 1; level-- {
		rules = append(rules, headingRule{
			re:   regexp.MustCompile(`(?m)^` + strings.Repeat("#", level) + ` (.+)$`),
			repl: fmt.Sprintf("<h%d>${1}</h%d>", level, level),
		})
	}
	return rules
}

// Render converts headings then replaces every newline with <br>. Input is
// not escaped.
func Render(text string) string {
	for _, rule := range headingRules {
		text = rule.re.ReplaceAllString(text, rule.repl)
	}
	return strings.ReplaceAll(text, "\n", "<br>")
}
