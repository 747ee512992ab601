// Package thesaurus holds the static table of competitive-programming
// concepts and their synonym phrases, and expands free-text queries through
// it.
package thesaurus

import (
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed synonyms.yaml
var defaultTable []byte

// Thesaurus maps canonical concepts to synonym phrases and back. All keys
// are lower-cased. It is immutable after Load and safe for concurrent use.
type Thesaurus struct {
	canonicals []string
	synonyms   map[string][]string
	phrases    []string
	reverse    map[string][]string
}

var defaultOnce = sync.OnceValue(func() *Thesaurus {
	t, err := parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("embedded synonym table: %v", err))
	}
	return t
})

// Default returns the embedded table.
func Default() *Thesaurus {
	return defaultOnce()
}

// LoadFile reads a YAML table from path. An empty path yields Default.
func LoadFile(path string) (*Thesaurus, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening thesaurus %s: %w", path, err)
	}
	defer f.Close()
	t, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("loading thesaurus %s: %w", path, err)
	}
	return t, nil
}

// Load decodes a YAML mapping of canonical concept to a list of phrases.
// Mapping order is kept: it decides the order in which a phrase shared by
// several concepts lists them.
func Load(r io.Reader) (*Thesaurus, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading thesaurus: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Thesaurus, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding thesaurus: %w", err)
	}
	t := &Thesaurus{
		synonyms: make(map[string][]string),
		reverse:  make(map[string][]string),
	}
	if len(doc.Content) == 0 {
		return t, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("thesaurus must be a mapping, got line %d", root.Line)
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valNode := root.Content[i], root.Content[i+1]
		canonical := normalize(keyNode.Value)
		if keyNode.Kind != yaml.ScalarNode || canonical == "" {
			return nil, fmt.Errorf("line %d: concept must be a non-empty string", keyNode.Line)
		}
		var phrases []string
		if err := valNode.Decode(&phrases); err != nil {
			return nil, fmt.Errorf("line %d: phrases for %q: %w", valNode.Line, canonical, err)
		}
		t.add(canonical, phrases)
	}

	if amb := t.Ambiguous(); len(amb) > 0 {
		slog.Default().With("component", "thesaurus").Debug("phrases shared by several concepts",
			"count", len(amb),
		)
	}
	return t, nil
}

func (t *Thesaurus) add(canonical string, phrases []string) {
	if _, ok := t.synonyms[canonical]; !ok {
		t.canonicals = append(t.canonicals, canonical)
		t.synonyms[canonical] = nil
	}
	for _, p := range phrases {
		phrase := normalize(p)
		if phrase == "" || slices.Contains(t.synonyms[canonical], phrase) {
			continue
		}
		t.synonyms[canonical] = append(t.synonyms[canonical], phrase)
		if _, ok := t.reverse[phrase]; !ok {
			t.phrases = append(t.phrases, phrase)
		}
		t.reverse[phrase] = append(t.reverse[phrase], canonical)
	}
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Len returns the number of canonical concepts.
func (t *Thesaurus) Len() int { return len(t.canonicals) }

// Concepts returns the canonical concepts in table order.
func (t *Thesaurus) Concepts() []string { return slices.Clone(t.canonicals) }

// IsCanonical reports whether word names a canonical concept.
func (t *Thesaurus) IsCanonical(word string) bool {
	_, ok := t.synonyms[normalize(word)]
	return ok
}

// Synonyms returns the phrases listed for canonical, or nil.
func (t *Thesaurus) Synonyms(canonical string) []string {
	return slices.Clone(t.synonyms[normalize(canonical)])
}

// Canonicals returns every concept that lists phrase, in table order.
func (t *Thesaurus) Canonicals(phrase string) []string {
	return slices.Clone(t.reverse[normalize(phrase)])
}

// Ambiguous returns the phrases that belong to more than one concept.
func (t *Thesaurus) Ambiguous() map[string][]string {
	out := make(map[string][]string)
	for phrase, cs := range t.reverse {
		if len(cs) > 1 {
			out[phrase] = slices.Clone(cs)
		}
	}
	return out
}

// Expansion is the result of expanding one query.
type Expansion struct {
	// Original holds the lower-cased query tokens.
	Original []string
	// Terms is the sorted, de-duplicated expanded term set. Multi-word
	// phrases appear as single entries.
	Terms []string
}

// Text joins the expanded terms with spaces.
func (e Expansion) Text() string {
	return strings.Join(e.Terms, " ")
}

// Grew reports whether expansion added anything beyond the query tokens.
func (e Expansion) Grew() bool {
	distinct := make(map[string]struct{}, len(e.Original))
	for _, w := range e.Original {
		distinct[w] = struct{}{}
	}
	return len(e.Terms) > len(distinct)
}

// Expand grows a query with related concepts:
//   - every query word that is a concept brings its phrases;
//   - every concept occurring as a substring of the query brings itself and
//     its phrases;
//   - every phrase occurring as a substring brings its concepts and their
//     phrases.
//
// The result always contains the original tokens. Expansion is not
// idempotent, so a query must be expanded once.
func (t *Thesaurus) Expand(query string) Expansion {
	lower := strings.ToLower(query)
	words := strings.Fields(lower)
	set := make(map[string]struct{}, len(words)*4)
	for _, w := range words {
		set[w] = struct{}{}
	}
	addConcept := func(canonical string) {
		set[canonical] = struct{}{}
		for _, p := range t.synonyms[canonical] {
			set[p] = struct{}{}
		}
	}

	for _, w := range words {
		if syns, ok := t.synonyms[w]; ok {
			for _, p := range syns {
				set[p] = struct{}{}
			}
		}
	}
	for _, c := range t.canonicals {
		if strings.Contains(lower, c) {
			addConcept(c)
		}
	}
	for _, p := range t.phrases {
		if !strings.Contains(lower, p) {
			continue
		}
		for _, c := range t.reverse[p] {
			addConcept(c)
		}
	}

	terms := make([]string, 0, len(set))
	for term := range set {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return Expansion{Original: words, Terms: terms}
}

// Annotate appends to text the concepts named by phrases found in it that
// are not already present. Text with nothing to add is returned unchanged.
func (t *Thesaurus) Annotate(text string) string {
	lower := strings.ToLower(text)
	var added []string
	seen := make(map[string]struct{})
	for _, p := range t.phrases {
		if !strings.Contains(lower, p) {
			continue
		}
		for _, c := range t.reverse[p] {
			if _, ok := seen[c]; ok || strings.Contains(lower, c) {
				continue
			}
			seen[c] = struct{}{}
			added = append(added, c)
		}
	}
	if len(added) == 0 {
		return text
	}
	return text + " " + strings.Join(added, " ")
}
