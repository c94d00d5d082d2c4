// Package parser reads flashcards from markdown deck files.
//
// A card is a "Q:" block followed by optional "A:" and "C:" (context) blocks.
// Lines without a prefix continue the current block. A "---" line ends the
// current card, and a markdown heading ends it too and names the deck for
// the cards that follow.
package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/studydeck/internal/domain"
)

// MaxLineSize is the longest line Parse accepts.
const MaxLineSize = 4 << 20

type field int

const (
	none field = iota
	front
	back
	context
)

var prefixes = []struct {
	prefix string
	field  field
}{
	{"Q:", front},
	{"A:", back},
	{"C:", context},
}

// ParseFile reads the deck file at path.
func ParseFile(path string) ([]domain.Flashcard, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

type cardBuilder struct {
	deck    string
	current domain.Flashcard
	field   field
	block   []string
	cards   []domain.Flashcard
}

func (b *cardBuilder) flushBlock() {
	if b.field == none || b.block == nil {
		return
	}
	content := strings.TrimRight(strings.Join(b.block, "\n"), " \t\n")
	switch b.field {
	case front:
		b.current.Front = content
	case back:
		b.current.Back = content
	case context:
		b.current.Context = content
	}
	b.block = nil
}

func (b *cardBuilder) finishCard() {
	b.flushBlock()
	if b.current.Front != "" {
		b.current.Deck = b.deck
		b.cards = append(b.cards, b.current)
	}
	b.current = domain.Flashcard{}
	b.field = none
}

func (b *cardBuilder) start(f field, text string) {
	b.flushBlock()
	// A question after an answer or context starts the next card.
	if f == front && b.field != none {
		b.finishCard()
	}
	b.field = f
	b.block = append(b.block, strings.TrimPrefix(text, " "))
}

// Parse extracts all cards from r.
func Parse(r io.Reader) ([]domain.Flashcard, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	b := &cardBuilder{}

	for scanner.Scan() {
		line := scanner.Text()

		if line == "---" {
			b.finishCard()
			continue
		}
		if deck, ok := heading(line); ok {
			b.finishCard()
			b.deck = deck
			continue
		}

		matched := false
		for _, p := range prefixes {
			if strings.HasPrefix(line, p.prefix) {
				b.start(p.field, line[len(p.prefix):])
				matched = true
				break
			}
		}
		if !matched && b.field != none {
			b.block = append(b.block, line)
		}
	}
	b.finishCard()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return b.cards, nil
}

func heading(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, "#")
	level := len(line) - len(trimmed)
	if level == 0 || level > 6 || !strings.HasPrefix(trimmed, " ") {
		return "", false
	}
	return strings.TrimSpace(trimmed), true
}
