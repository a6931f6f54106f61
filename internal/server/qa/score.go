// Package qa is a keyword-scoring stand-in for retrieval-augmented answers.
// It ranks readable documents by how often the question's terms occur in
// their text and names the best matches.
package qa

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/dmitrijs2005/docvault/internal/server/models"
)

const (
	// MaxContentChars bounds how much of each document is scored.
	MaxContentChars = 5000
	// MaxSources is how many documents an answer cites.
	MaxSources = 3

	snippetRadius = 100
	minTermLength = 3
)

// FallbackAnswer is returned when nothing matches or anything goes wrong.
const FallbackAnswer = "I could not find relevant information in the available documents to answer your question."

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`the and for are but not you all any can had her was one our out
		has him his how its may new now old see two who did get let put say she too use
		what when where which while with this that these those there their then than them
		they from have will would could should about into over under been being were does
		your yours some such only also just very more most other each both few own same`) {
		stopWords[w] = struct{}{}
	}
}

// Tokenize lower-cases the question, splits it on anything that is not a
// letter or digit and drops short words, stop words and duplicates.
func Tokenize(question string) []string {
	fields := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < minTermLength {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

// Truncate returns at most MaxContentChars characters of text.
func Truncate(text string) string {
	n := 0
	for i := range text {
		if n == MaxContentChars {
			return text[:i]
		}
		n++
	}
	return text
}

// Score is the total number of occurrences of terms in text, case folded.
func Score(text string, terms []string) int {
	lower := strings.ToLower(text)
	total := 0
	for _, t := range terms {
		total += strings.Count(lower, t)
	}
	return total
}

// Snippet is the text around the first hit of any term, or the start of
// the text when none occurs.
func Snippet(text string, terms []string) string {
	lower := strings.ToLower(text)
	first := -1
	for _, t := range terms {
		if i := strings.Index(lower, t); i >= 0 && (first < 0 || i < first) {
			first = i
		}
	}
	if first < 0 {
		first = 0
	}
	// ToLower can change byte lengths; work in runes of the original.
	runes := []rune(text)
	pos := len([]rune(lower[:first]))
	if pos > len(runes) {
		pos = len(runes)
	}
	start, end := pos-snippetRadius, pos+snippetRadius
	if start < 0 {
		start = 0
	}
	if end > len(runes) {
		end = len(runes)
	}
	s := strings.Join(strings.Fields(string(runes[start:end])), " ")
	if start > 0 {
		s = "..." + s
	}
	if end < len(runes) {
		s += "..."
	}
	return s
}

// Candidate is a document with its loaded text.
type Candidate struct {
	Document models.Document
	Text     string
}

// Rank scores candidates against the question and returns the answer with
// up to MaxSources sources. Ties keep candidate order.
func Rank(question string, candidates []Candidate) (string, []models.QASource) {
	terms := Tokenize(question)
	if len(terms) == 0 {
		return FallbackAnswer, []models.QASource{}
	}

	var sources []models.QASource
	for _, c := range candidates {
		text := Truncate(c.Text)
		score := Score(text, terms)
		if score == 0 {
			continue
		}
		sources = append(sources, models.QASource{
			DocumentID: c.Document.ID,
			Title:      c.Document.Title,
			Score:      score,
			Snippet:    Snippet(text, terms),
		})
	}
	if len(sources) == 0 {
		return FallbackAnswer, []models.QASource{}
	}

	sort.SliceStable(sources, func(i, j int) bool { return sources[i].Score > sources[j].Score })
	if len(sources) > MaxSources {
		sources = sources[:MaxSources]
	}
	return summarize(sources), sources
}

func summarize(sources []models.QASource) string {
	titles := make([]string, 0, len(sources))
	for _, s := range sources {
		titles = append(titles, fmt.Sprintf("%q", s.Title))
	}
	noun := "documents"
	if len(sources) == 1 {
		noun = "document"
	}
	return fmt.Sprintf("Found relevant information in %d %s: %s. The most relevant passage is from %q: %s",
		len(sources), noun, strings.Join(titles, ", "), sources[0].Title, sources[0].Snippet)
}
