package query

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlnum   = regexp.MustCompile(`[^0-9a-z]+`)
	nonAlnumCI = regexp.MustCompile(`[^A-Za-z0-9]+`)
	spaces     = regexp.MustCompile(`\s+`)
)

// Tokenize quebra o texto em sequências alfanuméricas, em minúsculas.
// Tokens vazios são descartados.
func Tokenize(text string) []string {
	parts := nonAlnum.Split(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

// Split quebra o texto nas sequências não alfanuméricas, preservando caixa
// e tokens vazios.
func Split(text string) []string {
	return nonAlnumCI.Split(text, -1)
}

// Normalize limpa a query para uso como chave: espaços colapsados,
// minúsculas e sem acentos.
func Normalize(q string) string {
	q = strings.TrimSpace(q)
	q = spaces.ReplaceAllString(q, " ")
	return strings.ToLower(RemoveAccents(q))
}

// RemoveAccents remove acentos de uma string
func RemoveAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}
