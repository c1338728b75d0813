package utils

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// URIToTemplate transforma a URI pública de um nó no template de busca.
// URIs que já têm {q} são devolvidas como vieram.
// Exemplo: "http://node.example/searsia" -> "http://node.example/searsia/search?q={q}"
func URIToTemplate(uri string) string {
	uri = strings.TrimSpace(uri)
	if uri == "" || strings.Contains(uri, "{q") {
		return uri
	}
	if !strings.HasSuffix(uri, "/") {
		uri += "/"
	}
	return uri + "search?q={q}"
}

// HashString devolve o MD5 hexadecimal da string, usado para nomear os
// arquivos de índice a partir da URL da mother
func HashString(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
