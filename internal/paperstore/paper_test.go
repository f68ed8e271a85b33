package paperstore

import "testing"

func TestSectionTextsOrderingAndFiltering(t *testing.T) {
	p := Paper{
		Sections: []Section{
			{Text: "  alpha  "},
			{Text: ""},
			{Text: "beta"},
			{Text: "\n\t"},
			{Text: "gamma"},
		},
	}
	texts := p.SectionTexts()
	want := []string{"alpha", "beta", "gamma"}
	if len(texts) != len(want) {
		t.Fatalf("expected %d texts, got %d", len(want), len(texts))
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Fatalf("position %d: expected %q, got %q", i, want[i], texts[i])
		}
	}
}

func TestSectionTextsAllEmpty(t *testing.T) {
	p := Paper{Sections: []Section{{Text: " "}, {Text: ""}}}
	if got := p.ExpectedClipCount(); got != 0 {
		t.Fatalf("expected 0 narratable sections, got %d", got)
	}
}

func TestSectionTextsNoStructure(t *testing.T) {
	var p Paper
	if got := p.SectionTexts(); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestDecodeClips(t *testing.T) {
	if urls, ok := decodeClips(`["a","b"]`); !ok || len(urls) != 2 {
		t.Fatalf("expected decode of valid list, got %v ok=%v", urls, ok)
	}
	if urls, ok := decodeClips(""); !ok || urls != nil {
		t.Fatalf("expected empty decode for blank value, got %v ok=%v", urls, ok)
	}
	if _, ok := decodeClips("not json"); ok {
		t.Fatal("expected decode failure for garbage")
	}
}
