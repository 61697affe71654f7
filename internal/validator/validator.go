/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package validator implements the pure answer-validation and scoring
// pipeline (spec §4.1). Every exported function here is deterministic
// and side-effect free: same input, same output, never an error.
package validator

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/partyquiz/engine/internal/quiz"
)

// Result is the validator's full verdict for one submission.
type Result struct {
	IsCorrect          *bool
	ScorePercentage    float64
	Score              int
	NormalizedAnswer   any
	CorrectAnswer      any
	Format             quiz.AnswerFormat
}

// Input bundles everything the validator needs to score one answer.
// TimeSpentMs/TimeLimitMs are carried through for callers that want to
// gate FUZZY/NUMERIC tiers on elapsed time in the future; the current
// scoring tables in spec §4.1 do not use them directly.
type Input struct {
	QuestionType  quiz.QuestionType
	Raw           any
	Options       []quiz.Option
	Settings      quiz.Settings
	CurrentStreak int
	TimeSpentMs   int64
	TimeLimitMs   int64
}

// Validate runs format coercion, correctness comparison and final
// score computation for one submission. It never panics and never
// returns an error: malformed input coerces to a zero-percentage
// result instead.
func Validate(in Input) Result {
	format := quiz.FormatFor(in.QuestionType)
	mode := quiz.ModeFor(in.QuestionType)

	normalized := coerce(format, in.Raw)
	correct := extractCorrect(format, in.Options, in.Settings)

	pct, isCorrect := score(mode, format, normalized, correct, in.Settings)

	base := in.Settings.BasePoints
	points := int(math.Round(float64(base) * pct / 100))
	if mode == quiz.ScoreNoScore {
		points = 0
	} else if pct == 100 && in.Settings.StreakBonus {
		points += in.Settings.StreakPoints * in.CurrentStreak
	}

	return Result{
		IsCorrect:       isCorrect,
		ScorePercentage: pct,
		Score:           points,
		NormalizedAnswer: normalized,
		CorrectAnswer:    correct,
		Format:           format,
	}
}

// coerce converts a raw, freely-shaped client payload into the target
// answer format. Coercion never fails: anything it can't interpret
// becomes the format's zero value, which scores as incorrect/0%.
func coerce(format quiz.AnswerFormat, raw any) any {
	switch format {
	case quiz.FormatBoolean:
		return coerceBool(raw)
	case quiz.FormatOptionID:
		s, _ := raw.(string)
		return s
	case quiz.FormatOptionIDs:
		return coerceStringSlice(raw)
	case quiz.FormatOrder:
		return coerceStringSlice(raw)
	case quiz.FormatNumber:
		n, _ := coerceFloat(raw)
		return n
	case quiz.FormatText:
		s, _ := raw.(string)
		return normalizeText(s)
	case quiz.FormatNoAnswer:
		return nil
	default:
		return raw
	}
}

func coerceBool(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "ja", "1":
			return true
		}
		return false
	case float64:
		return v == 1
	case int:
		return v == 1
	default:
		return false
	}
}

func coerceFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		var f float64
		var neg bool
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		if strings.HasPrefix(s, "-") {
			neg = true
			s = s[1:]
		}
		whole, frac, hasFrac := strings.Cut(s, ".")
		for _, r := range whole {
			if !unicode.IsDigit(r) {
				return 0, false
			}
			f = f*10 + float64(r-'0')
		}
		if hasFrac {
			div := 1.0
			for _, r := range frac {
				if !unicode.IsDigit(r) {
					return 0, false
				}
				div *= 10
				f += float64(r-'0') / div
			}
		}
		if neg {
			f = -f
		}
		return f, true
	default:
		return 0, false
	}
}

func coerceStringSlice(raw any) []string {
	switch v := raw.(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// normalizeText lowercases, NFC-normalizes, trims, and collapses
// internal whitespace, per spec §4.1.
func normalizeText(s string) string {
	s = norm.NFC.String(s)
	s = strings.ToLower(s)
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// extractCorrect reads the canonical correct answer out of the
// options/settings blob for the given format.
func extractCorrect(format quiz.AnswerFormat, options []quiz.Option, settings quiz.Settings) any {
	switch format {
	case quiz.FormatBoolean:
		for _, o := range options {
			if o.IsCorrect {
				// "True"/"true" option text maps to boolean true.
				return strings.EqualFold(strings.TrimSpace(o.Text), "true")
			}
		}
		return false
	case quiz.FormatOptionID:
		for _, o := range options {
			if o.IsCorrect {
				return o.ID
			}
		}
		return ""
	case quiz.FormatOptionIDs:
		ids := make([]string, 0, len(options))
		for _, o := range options {
			if o.IsCorrect {
				ids = append(ids, o.ID)
			}
		}
		return ids
	case quiz.FormatOrder:
		ordered := make([]quiz.Option, len(options))
		copy(ordered, options)
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })
		ids := make([]string, len(ordered))
		for i, o := range ordered {
			ids[i] = o.ID
		}
		return ids
	case quiz.FormatNumber:
		return settings.CorrectAnswerNumber
	case quiz.FormatText:
		best := normalizeText(settings.CorrectAnswerText)
		return best
	default:
		return nil
	}
}

// score dispatches to the scoring-mode table in spec §4.1 and returns
// (percentage, isCorrect). POLL (NO_SCORE) always reports 100% and
// isCorrect=true; Validate then forces its final score to 0.
func score(mode quiz.ScoringMode, format quiz.AnswerFormat, normalized, correct any, settings quiz.Settings) (float64, *bool) {
	switch mode {
	case quiz.ScoreNoScore:
		t := true
		return 100, &t
	case quiz.ScoreExactMatch:
		eq := exactEqual(format, normalized, correct)
		return boolPct(eq), &eq
	case quiz.ScorePartialMulti:
		return partialMulti(normalized, correct)
	case quiz.ScorePartialOrder:
		return partialOrder(normalized, correct)
	case quiz.ScoreFuzzyText:
		return fuzzyText(normalized, correct, settings)
	case quiz.ScoreNumericDistance:
		return numericDistance(normalized, correct, settings)
	case quiz.ScoreNumericYear:
		return numericYear(normalized, correct)
	default:
		f := false
		return 0, &f
	}
}

func boolPct(ok bool) float64 {
	if ok {
		return 100
	}
	return 0
}

func exactEqual(format quiz.AnswerFormat, normalized, correct any) bool {
	switch format {
	case quiz.FormatBoolean:
		a, _ := normalized.(bool)
		b, _ := correct.(bool)
		return a == b
	case quiz.FormatOptionID:
		a, _ := normalized.(string)
		b, _ := correct.(string)
		return a != "" && a == b
	default:
		a, _ := normalized.(string)
		b, _ := correct.(string)
		return a == b
	}
}

func partialMulti(normalized, correct any) (float64, *bool) {
	picked, _ := normalized.([]string)
	want, _ := correct.([]string)
	n := len(want)
	if n == 0 {
		f := false
		return 0, &f
	}
	wantSet := make(map[string]bool, n)
	for _, id := range want {
		wantSet[id] = true
	}
	pickedSet := make(map[string]bool, len(picked))
	for _, id := range picked {
		pickedSet[id] = true
	}

	pct := 0.0
	for id := range pickedSet {
		if wantSet[id] {
			pct += 100.0 / float64(n)
		} else {
			pct -= 50.0 / float64(n)
		}
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	exact := len(picked) == n && pct == 100
	return pct, &exact
}

func partialOrder(normalized, correct any) (float64, *bool) {
	got, _ := normalized.([]string)
	want, _ := correct.([]string)
	n := len(want)
	if n == 0 {
		f := false
		return 0, &f
	}
	matches := 0
	for i := 0; i < n && i < len(got); i++ {
		if got[i] == want[i] {
			matches++
		}
	}
	pct := 100 * float64(matches) / float64(n)
	exact := matches == n && len(got) == n
	return pct, &exact
}

func fuzzyText(normalized, correct any, settings quiz.Settings) (float64, *bool) {
	answer, _ := normalized.(string)

	candidates := []string{}
	if c, ok := correct.(string); ok && c != "" {
		candidates = append(candidates, c)
	}
	for _, a := range settings.AcceptableAnswers {
		candidates = append(candidates, normalizeText(a))
	}

	best := 0.0
	for _, c := range candidates {
		if s := Similarity(answer, c); s > best {
			best = s
		}
	}

	var pct float64
	switch {
	case best == 1.0:
		pct = 100
	case best >= 0.95:
		pct = 90
	case best >= 0.90:
		pct = 80
	case best >= 0.85:
		pct = 70
	case best >= 0.80:
		pct = 50
	default:
		pct = 0
	}
	exact := best >= 0.80
	return pct, &exact
}

func numericDistance(normalized, correct any, settings quiz.Settings) (float64, *bool) {
	got, _ := normalized.(float64)
	want, _ := correct.(float64)
	if want == 0 {
		exact := got == want
		return boolPct(exact), &exact
	}
	deltaPct := math.Abs(got-want) / math.Abs(want) * 100

	margin := settings.MarginPercent
	var pct float64
	switch {
	case deltaPct <= margin:
		pct = 100
	case deltaPct <= 5:
		pct = 90
	case deltaPct <= 10:
		pct = 80
	case deltaPct <= 15:
		pct = 60
	case deltaPct <= 25:
		pct = 40
	case deltaPct <= 50:
		pct = 20
	default:
		pct = 0
	}
	exact := pct == 100
	return pct, &exact
}

func numericYear(normalized, correct any) (float64, *bool) {
	got, _ := normalized.(float64)
	want, _ := correct.(float64)
	delta := math.Abs(got - want)

	var pct float64
	switch {
	case delta == 0:
		pct = 100
	case delta == 1:
		pct = 90
	case delta == 2:
		pct = 70
	case delta == 3:
		pct = 50
	case delta <= 5:
		pct = 30
	case delta <= 10:
		pct = 10
	default:
		pct = 0
	}
	exact := pct == 100
	return pct, &exact
}

// Similarity returns the Levenshtein similarity of a and b, normalized
// to [0,1] by the longer string's length. It is symmetric:
// Similarity(a, b) == Similarity(b, a).
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein(ra, rb)
	return 1 - float64(dist)/float64(maxLen)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
