// Package tokenizer provides the text normalization and tokenization shared
// by the chunker and the keyword index.
//
// Tokens are runs of letters and digits for space-delimited scripts and
// single runes for Han, Hiragana, and Katakana, so Japanese manual text
// chunks and indexes without a morphological dictionary. Every token carries
// its byte offset into the input, which lets the chunker slice original text
// spans (punctuation included) while measuring length in tokens.
//
// Query-side and index-side callers must use the same functions here;
// diverging normalization would silently empty BM25 result lists.
package tokenizer
