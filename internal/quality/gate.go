// Package quality scores extracted candidates. Scoring is a pure function of
// title and description so repeated runs over identical content agree.
package quality

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/ingest-cli/internal/model"
)

// DefaultThreshold is the minimum score a candidate needs to pass.
const DefaultThreshold = 0.6

// Flags raised by the gate.
const (
	FlagTitleTooShort      = "title_too_short"
	FlagTitleTooLong       = "title_too_long"
	FlagDescriptionTooLong = "description_too_long"
	FlagTooFewTokens       = "too_few_tokens"
	FlagQuestionTitle      = "question_title"
	FlagMissingActionVerb  = "missing_action_verb"
	FlagNonIdeaPattern     = "non_idea_pattern"
	FlagArticleHeading     = "article_heading"
)

const (
	minTitleLen    = 8
	maxTitleLen    = 160
	maxDescription = 500
	minTokens      = 3
)

// Result is the outcome of scoring one candidate.
type Result struct {
	Score     float64  `json:"score"`
	Passed    bool     `json:"passed"`
	Threshold float64  `json:"threshold"`
	Flags     []string `json:"flags"`
	HardFail  bool     `json:"hard_fail"`
}

// actionVerbs are the accepted leading verbs of an idea-shaped title.
var actionVerbs = map[string]bool{
	"add": true, "adopt": true, "attend": true, "bake": true, "build": true,
	"celebrate": true, "clean": true, "collect": true, "cook": true, "craft": true,
	"create": true, "dance": true, "design": true, "discover": true, "donate": true,
	"draw": true, "explore": true, "fix": true, "grow": true, "help": true,
	"host": true, "join": true, "knit": true, "learn": true, "make": true,
	"map": true, "mentor": true, "organize": true, "paint": true, "plan": true,
	"plant": true, "play": true, "practice": true, "read": true, "recycle": true,
	"repair": true, "restore": true, "run": true, "sew": true, "share": true,
	"sing": true, "start": true, "swap": true, "teach": true, "tour": true,
	"try": true, "visit": true, "volunteer": true, "walk": true, "watch": true,
	"write": true,
}

// nonIdeaPatterns match boilerplate that is never a usable idea.
var nonIdeaPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(privacy|cookie)s? (policy|notice|settings)\b`),
	regexp.MustCompile(`\bterms (of|and) (use|service|conditions)\b`),
	regexp.MustCompile(`\b(log ?in|sign ?(in|up)|create an account|forgot password)\b`),
	regexp.MustCompile(`\b(subscribe|newsletter|unsubscribe)\b`),
	regexp.MustCompile(`\b(page not found|404|access denied)\b`),
	regexp.MustCompile(`\b(all rights reserved|copyright)\b`),
	regexp.MustCompile(`^(contact|about) us\b`),
	regexp.MustCompile(`\b(buy now|add to cart|checkout|discount code)\b`),
}

// articleHeadingPatterns match editorial headlines rather than ideas.
var articleHeadingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(how|why|what|when|where|who) `),
	regexp.MustCompile(`^(top )?\d+ (ways|tips|things|reasons|ideas|best)\b`),
	regexp.MustCompile(`^(the )?(ultimate|complete|beginner s) guide\b`),
	regexp.MustCompile(`^(news|update|opinion|review|interview|press release)\b`),
	regexp.MustCompile(`\b(announces|announced|launches|reveals)\b`),
}

// Gate scores candidates against a threshold.
type Gate struct {
	Threshold float64
}

// New returns a gate using threshold, or DefaultThreshold when threshold is
// not in (0, 1].
func New(threshold float64) *Gate {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Gate{Threshold: threshold}
}

// Evaluate scores a candidate with the default threshold.
func Evaluate(title, description string) Result {
	return New(DefaultThreshold).Evaluate(title, description)
}

// Evaluate applies the ordered penalties to title and description.
func (g *Gate) Evaluate(title, description string) Result {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)

	score := 1.0
	flags := []string{}
	hardFail := false

	penalize := func(flag string, amount float64) {
		score -= amount
		flags = append(flags, flag)
	}

	titleLen := utf8.RuneCountInString(title)
	if titleLen < minTitleLen {
		penalize(FlagTitleTooShort, 0.4)
	}
	if titleLen > maxTitleLen {
		penalize(FlagTitleTooLong, 0.25)
	}
	if utf8.RuneCountInString(description) > maxDescription {
		penalize(FlagDescriptionTooLong, 0.2)
	}

	normalized := model.NormalizeText(title)
	tokens := strings.Fields(normalized)
	if len(tokens) < minTokens {
		penalize(FlagTooFewTokens, 0.25)
	}
	if strings.HasSuffix(title, "?") {
		penalize(FlagQuestionTitle, 0.2)
	}
	if len(tokens) == 0 || !actionVerbs[tokens[0]] {
		penalize(FlagMissingActionVerb, 0.3)
	}

	haystack := normalized + " " + model.NormalizeText(description)
	if matchAny(nonIdeaPatterns, haystack) {
		penalize(FlagNonIdeaPattern, 0.5)
		hardFail = true
	}
	if matchAny(articleHeadingPatterns, normalized) {
		penalize(FlagArticleHeading, 0.35)
	}

	score = math.Round(math.Max(0, math.Min(1, score))*10000) / 10000

	return Result{
		Score:     score,
		Passed:    !hardFail && score >= g.Threshold,
		Threshold: g.Threshold,
		Flags:     flags,
		HardFail:  hardFail,
	}
}

// Status maps a gate result to the candidate status it implies.
func (r Result) Status() model.CandidateStatus {
	if r.Passed {
		return model.CandidateStatusCurated
	}
	return model.CandidateStatusQualityFiltered
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
