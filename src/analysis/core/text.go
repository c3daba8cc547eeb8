package core

import (
	"strings"
	"unicode"

	"credit-observer/src/models"
)

// Word polarities for headline sentiment. Values are in [-1, 1].
var sentimentLexicon = map[string]float64{
	"beat": 0.6, "beats": 0.6, "record": 0.4, "growth": 0.5, "grows": 0.5, "surge": 0.6,
	"surges": 0.6, "soar": 0.7, "soars": 0.7, "gain": 0.4, "gains": 0.4, "profit": 0.4,
	"profitable": 0.5, "strong": 0.5, "upgrade": 0.6, "upgraded": 0.6, "outperform": 0.5,
	"rally": 0.5, "rallies": 0.5, "positive": 0.4, "improve": 0.4, "improved": 0.4,
	"expands": 0.3, "partnership": 0.3, "approval": 0.4, "approved": 0.4, "dividend": 0.3,
	"raises": 0.3, "success": 0.5, "successful": 0.5, "optimistic": 0.5, "robust": 0.4,

	"miss": -0.6, "misses": -0.6, "loss": -0.5, "losses": -0.5, "decline": -0.5,
	"declines": -0.5, "drop": -0.5, "drops": -0.5, "fall": -0.5, "falls": -0.5,
	"plunge": -0.7, "plunges": -0.7, "weak": -0.5, "downgrade": -0.6, "downgraded": -0.6,
	"lawsuit": -0.5, "investigation": -0.5, "subpoena": -0.5, "fraud": -0.8, "bankruptcy": -0.9,
	"default": -0.8, "debt": -0.2, "layoffs": -0.5, "cuts": -0.4, "warning": -0.5,
	"recall": -0.5, "fine": -0.4, "fined": -0.5, "resignation": -0.4, "resigns": -0.4,
	"negative": -0.4, "risk": -0.3, "concern": -0.3, "concerns": -0.3, "restructuring": -0.3,
}

var negators = map[string]bool{"not": true, "no": true, "never": true, "without": true}

// Headline keywords that raise event impact.
var impactKeywords = []string{
	"bankruptcy", "acquisition", "merger", "lawsuit", "investigation",
	"earnings", "revenue", "profit", "loss", "debt", "restructuring",
	"ceo", "resignation", "appointed", "partnership", "contract",
}

var eventKeywords = []struct {
	eventType string
	words     []string
}{
	{models.EventFinancial, []string{"earnings", "revenue", "profit", "loss"}},
	{models.EventCorporateAction, []string{"acquisition", "merger", "partnership"}},
	{models.EventLegal, []string{"lawsuit", "investigation", "fine"}},
	{models.EventManagement, []string{"ceo", "cfo", "resignation", "appointed"}},
}

// -----------------------------------------------------------------------------

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// -----------------------------------------------------------------------------

// ScoreSentiment maps text to [0, 100] with 50 neutral, averaging the
// polarity of lexicon words (a preceding negator flips the sign).
func ScoreSentiment(text string) float64 {
	tokens := tokenize(text)
	sum, n := 0.0, 0
	for i, tok := range tokens {
		p, ok := sentimentLexicon[tok]
		if !ok {
			continue
		}
		if i > 0 && negators[tokens[i-1]] {
			p = -p
		}
		sum += p
		n++
	}
	if n == 0 {
		return models.NeutralSentiment
	}
	return Clamp((sum/float64(n)+1)*50, 0, 100)
}

// -----------------------------------------------------------------------------

// ScoreImpact starts from the neutral impact, adds 20 per impact keyword in
// the headline and half the sentiment's distance from neutral.
func ScoreImpact(headline string, sentiment float64) float64 {
	lower := strings.ToLower(headline)
	impact := models.NeutralImpact
	for _, kw := range impactKeywords {
		if strings.Contains(lower, kw) {
			impact += 20
		}
	}
	if sentiment > 50 {
		impact += (sentiment - 50) * 0.5
	} else {
		impact += (50 - sentiment) * 0.5
	}
	return Clamp(impact, 0, 100)
}

// -----------------------------------------------------------------------------

// ClassifyEvent assigns an event type from headline keywords.
func ClassifyEvent(headline string) string {
	tokens := tokenize(headline)
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	for _, ek := range eventKeywords {
		for _, w := range ek.words {
			if set[w] {
				return ek.eventType
			}
		}
	}
	return models.EventGeneral
}
