package paperstore

import (
	"encoding/json"
	"strings"
)

// Section is one unit of narratable text from a paper's processed structure.
// Sections are produced upstream and read-only here.
type Section struct {
	Heading string `json:"heading,omitempty"`
	Text    string `json:"text"`
}

// Paper is the document record as seen by the audio pipeline.
type Paper struct {
	DOI      string
	Title    string
	Sections []Section
	ClipURLs []string
}

// SectionTexts returns the narratable texts in section order, skipping
// sections whose text is empty after trimming. Clip i always corresponds
// to the i-th entry of this list.
func (p Paper) SectionTexts() []string {
	var texts []string
	for _, s := range p.Sections {
		if t := strings.TrimSpace(s.Text); t != "" {
			texts = append(texts, t)
		}
	}
	return texts
}

// ExpectedClipCount is the number of clips a complete narration has.
func (p Paper) ExpectedClipCount() int {
	return len(p.SectionTexts())
}

func encodeClips(urls []string) (string, error) {
	if urls == nil {
		urls = []string{}
	}
	data, err := json.Marshal(urls)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodeClips parses the stored clip list. The column holds one canonical
// encoding (a JSON array), but an undecodable value must read as "no clips
// yet" so the delivery endpoints always have a usable snapshot.
func decodeClips(raw string) ([]string, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, true
	}
	var urls []string
	if err := json.Unmarshal([]byte(raw), &urls); err != nil {
		return nil, false
	}
	return urls, true
}

func decodeSections(raw string) ([]Section, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, true
	}
	var sections []Section
	if err := json.Unmarshal([]byte(raw), &sections); err != nil {
		return nil, false
	}
	return sections, true
}
