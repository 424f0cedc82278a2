package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Characters outside the Han/Hiragana/Katakana scripts that still belong to
// Japanese words and must not split them.
const (
	prolongedSoundMark   = 'ー' // ー as in ブレーキ
	ideographicIteration = '々' // 々 as in 時々
)

// Token is a single text unit with its byte offset into the tokenized text.
type Token struct {
	Text  string
	Start int
}

// End returns the byte offset just past the token.
func (t Token) End() int {
	return t.Start + len(t.Text)
}

// Tokenize splits text into tokens. Runs of letters and digits form one token
// for space-delimited scripts; each Han, Hiragana, or Katakana rune is a token
// of its own, since those scripts carry no word boundaries. Whitespace and
// punctuation separate tokens and are never emitted.
//
// The same function backs chunk sizing and BM25 term extraction so that
// measured chunk lengths and index vocabulary can never disagree.
func Tokenize(text string) []Token {
	tokens := make([]Token, 0, len(text)/4)
	wordStart := -1

	for i, r := range text {
		switch {
		case isCJK(r):
			if wordStart >= 0 {
				tokens = append(tokens, Token{Text: text[wordStart:i], Start: wordStart})
				wordStart = -1
			}
			tokens = append(tokens, Token{Text: text[i : i+utf8.RuneLen(r)], Start: i})
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if wordStart < 0 {
				wordStart = i
			}
		default:
			if wordStart >= 0 {
				tokens = append(tokens, Token{Text: text[wordStart:i], Start: wordStart})
				wordStart = -1
			}
		}
	}

	if wordStart >= 0 {
		tokens = append(tokens, Token{Text: text[wordStart:], Start: wordStart})
	}

	return tokens
}

// Terms returns the lowercased token texts of the input, the normalization
// shared by index construction and query parsing.
func Terms(text string) []string {
	tokens := Tokenize(text)
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = strings.ToLower(tok.Text)
	}
	return terms
}

// NormalizeWhitespace collapses every run of whitespace into a single space
// and trims the ends. Token offsets produced afterwards refer to the
// normalized text.
func NormalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// isCJK reports whether the rune belongs to a script without word boundaries
// that is tokenized rune-by-rune.
func isCJK(r rune) bool {
	if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) {
		return true
	}
	return r == prolongedSoundMark || r == ideographicIteration
}
