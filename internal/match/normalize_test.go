package match

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "Caldera TGE", "caldera tge"},
		{"collapses whitespace", "  caldera \n\t tge  ", "caldera tge"},
		{"strips tags", "<p>Caldera <b>TGE</b> live</p>", "caldera tge live"},
		{"unescapes entities", "Caldera &amp; friends", "caldera & friends"},
		{"tag becomes separator", "live<br>today", "live today"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Normalize(tc.in); got != tc.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestFindWholeWord(t *testing.T) {
	t.Parallel()

	text := "tge is here, the tge, not postgear"
	got := findWholeWord(text, "tge")
	want := []int{0, 17}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("findWholeWord = %v, want %v", got, want)
	}
}

func TestFindWholeWord_RejectsSubstrings(t *testing.T) {
	t.Parallel()

	if got := findWholeWord("calderas are volcanic", "caldera"); got != nil {
		t.Fatalf("expected no whole-word hit inside a longer word, got %v", got)
	}
	if got := findWholeWord("the $cal token", "$cal"); len(got) != 1 {
		t.Fatalf("expected one hit for $cal, got %v", got)
	}
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	got := tokenize("caldera tge, live")
	want := []token{
		{text: "caldera", offset: 0},
		{text: "tge", offset: 8},
		{text: "live", offset: 13},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("tokenize = %v, want %v", got, want)
	}
}
