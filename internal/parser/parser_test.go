package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name          string
		input         string
		expectedCards int
		expectedQ     string
		expectedA     string
		expectedC     string
		expectedDeck  string
	}{
		{
			name:          "Simple Q&A",
			input:         "Q: What is the capital of France?\nA: Paris",
			expectedCards: 1,
			expectedQ:     "What is the capital of France?",
			expectedA:     "Paris",
		},
		{
			name:          "Simple Q, A, and C",
			input:         "Q: What is 1+1?\nA: 2\nC: Basic arithmetic",
			expectedCards: 1,
			expectedQ:     "What is 1+1?",
			expectedA:     "2",
			expectedC:     "Basic arithmetic",
		},
		{
			name: "Multiline Answer",
			input: `
Q: What are the primary colors?
A: Red
Blue
Yellow
`,
			expectedCards: 1,
			expectedQ:     "What are the primary colors?",
			expectedA:     "Red\nBlue\nYellow",
		},
		{
			name: "Two Cards",
			input: `
Q: First question
A: First answer

Q: Second question
A: Second answer
`,
			expectedCards: 2,
		},
		{
			name: "Separator",
			input: `Q: One
A: 1
---
Q: Two
A: 2`,
			expectedCards: 2,
		},
		{
			name: "Heading names the deck",
			input: `# Spanish verbs

Q: to eat
A: comer
`,
			expectedCards: 1,
			expectedQ:     "to eat",
			expectedA:     "comer",
			expectedDeck:  "Spanish verbs",
		},
		{
			name:          "No cards, just text",
			input:         "This is a file with no questions.",
			expectedCards: 0,
		},
		{
			name:          "Prefixes with no space",
			input:         "Q:Question\nA:Answer",
			expectedCards: 1,
			expectedQ:     "Question",
			expectedA:     "Answer",
		},
		{
			name:          "Hashtag without space is not a heading",
			input:         "Q: Tag?\nA: #golang",
			expectedCards: 1,
			expectedQ:     "Tag?",
			expectedA:     "#golang",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cards, err := Parse(strings.NewReader(tc.input))
			if err != nil {
				t.Fatalf("Parse() returned an unexpected error: %v", err)
			}

			if len(cards) != tc.expectedCards {
				t.Fatalf("Expected %d cards, but got %d", tc.expectedCards, len(cards))
			}

			if tc.expectedCards == 1 {
				card := cards[0]
				if card.Front != tc.expectedQ {
					t.Errorf("Expected Front to be '%s', but got '%s'", tc.expectedQ, card.Front)
				}
				if card.Back != tc.expectedA {
					t.Errorf("Expected Back to be '%s', but got '%s'", tc.expectedA, card.Back)
				}
				if card.Context != tc.expectedC {
					t.Errorf("Expected Context to be '%s', but got '%s'", tc.expectedC, card.Context)
				}
				if card.Deck != tc.expectedDeck {
					t.Errorf("Expected Deck to be '%s', but got '%s'", tc.expectedDeck, card.Deck)
				}
			}
		})
	}
}

func TestParseDeckSwitch(t *testing.T) {
	input := `# Go
Q: Zero value of int?
A: 0
## Channels
Q: Unbuffered send blocks until?
A: A receiver is ready
`
	cards, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() returned an unexpected error: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("Expected 2 cards, but got %d", len(cards))
	}
	if cards[0].Deck != "Go" || cards[1].Deck != "Channels" {
		t.Errorf("Unexpected decks %q and %q", cards[0].Deck, cards[1].Deck)
	}
	if cards[0].Back != "0" {
		t.Errorf("Expected the heading to end the first answer, got %q", cards[0].Back)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deck.md")
	if err := os.WriteFile(path, []byte("Q: ping\nA: pong\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cards, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() returned an unexpected error: %v", err)
	}
	if len(cards) != 1 || cards[0].Back != "pong" {
		t.Errorf("Unexpected cards: %+v", cards)
	}

	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.md")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func TestParseLongLines(t *testing.T) {
	long := strings.Repeat("x", 200*1024)
	cards, err := Parse(strings.NewReader("Q: long answer\nA: " + long + "\n"))
	if err != nil {
		t.Fatalf("Parse() returned an unexpected error: %v", err)
	}
	if len(cards) != 1 || cards[0].Back != long {
		t.Errorf("Expected one card with a %d byte answer", len(long))
	}

	tooLong := "Q: q\nA: " + strings.Repeat("x", MaxLineSize+1) + "\n"
	if _, err := Parse(strings.NewReader(tooLong)); err == nil {
		t.Error("Expected an error for a line over MaxLineSize")
	}
}
