package memory

import (
	"reflect"
	"testing"
)

func TestQueryTokens(t *testing.T) {
	cases := []struct {
		name  string
		query string
		want  []string
	}{
		{"empty", "   ", nil},
		{"drops short and dedups", "is it pizza or pizza time", []string{"pizza", "time"}},
		{"strips punctuation", "pizza, party!", []string{"pizza", "party"}},
		{"caps at four", "alpha bravo charlie delta echo foxtrot", []string{"alpha", "bravo", "charlie", "delta"}},
		{"lowercases", "Pizza PARTY", []string{"pizza", "party"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := queryTokens(tc.query)
			if len(got) == 0 && len(tc.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("queryTokens(%q) = %v, want %v", tc.query, got, tc.want)
			}
		})
	}
}

func TestExtractTermsFiltersStopwords(t *testing.T) {
	terms := extractTerms("The pizza and the party with everyone")
	for _, term := range terms {
		if term == "the" || term == "and" || term == "with" || term == "everyone" {
			t.Fatalf("stopword leaked: %v", terms)
		}
	}
	if !reflect.DeepEqual(terms, []string{"pizza", "party"}) {
		t.Fatalf("unexpected terms %v", terms)
	}
}

func TestLexicalOverlap(t *testing.T) {
	tokens := []string{"pizza", "party"}
	cases := []struct {
		text string
		want float64
	}{
		{"Let's plan a pizza party this weekend!", 1},
		{"pizza tomorrow?", 0.5},
		{"nothing related", 0},
		{"", 0},
	}
	for _, tc := range cases {
		if got := lexicalOverlap(tokens, tc.text); got != tc.want {
			t.Fatalf("lexicalOverlap(%q) = %f, want %f", tc.text, got, tc.want)
		}
	}
}

func TestRecencyDecay(t *testing.T) {
	if got := recencyDecay(0); got != 1 {
		t.Fatalf("zero age should decay to 1, got %f", got)
	}
	if got := recencyDecay(-100); got != 1 {
		t.Fatalf("future timestamps clamp to 1, got %f", got)
	}
	day := recencyDecay(86400)
	week := recencyDecay(7 * 86400)
	if day <= week {
		t.Fatalf("decay must be monotonic: day=%f week=%f", day, week)
	}
	if week <= 0 || week >= 1 {
		t.Fatalf("decay must stay in (0,1): %f", week)
	}
}
