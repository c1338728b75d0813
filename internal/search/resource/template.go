package resource

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	queryParam    = regexp.MustCompile(`\{q\??\}`)
	optionalParam = regexp.MustCompile(`\{[0-9A-Za-z\-_]+\?\}`)
	requiredParam = regexp.MustCompile(`\{[0-9A-Za-z\-_]+\}`)
	// usado em searchResource: remove opcionais e a consulta
	optionalOrQuery = regexp.MustCompile(`\{[0-9A-Za-z\-_]+\?\}|\{q\}`)
)

// fillTemplate substitui parâmetros privados e a consulta já codificada,
// remove parâmetros opcionais e falha se sobrar algum obrigatório.
func fillTemplate(template, encodedQuery string, private map[string]string) (string, error) {
	out := template
	for name, value := range private {
		param := regexp.MustCompile(`\{` + regexp.QuoteMeta(name) + `\??\}`)
		out = param.ReplaceAllLiteralString(out, value)
	}
	out = queryParam.ReplaceAllLiteralString(out, encodedQuery)
	out = optionalParam.ReplaceAllString(out, "")
	if missing := requiredParam.FindString(out); missing != "" {
		return "", fmt.Errorf("parâmetro de url ausente %s", missing)
	}
	return out, nil
}

// fillHeaders resolve parâmetros privados nos valores dos headers
func fillHeaders(headers, private map[string]string) (map[string]string, error) {
	if len(headers) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(headers))
	for name, value := range headers {
		if strings.Contains(value, "{") {
			for param, secret := range private {
				value = strings.ReplaceAll(value, "{"+param+"}", secret)
			}
			if missing := requiredParam.FindString(value); missing != "" {
				return nil, fmt.Errorf("parâmetro de header ausente %s", missing)
			}
		}
		out[name] = value
	}
	return out, nil
}

// encodePostQuery codifica a consulta conforme o postencode do resource
func encodePostQuery(q, encoding string) string {
	switch encoding {
	case "", "application/x-www-form-urlencoded":
		return url.QueryEscape(q)
	case "application/json":
		b, _ := json.Marshal(q)
		return string(b[1 : len(b)-1])
	default:
		return q
	}
}

// replaceLastID troca a última ocorrência de oldID no template por newID
// e remove a consulta e os parâmetros opcionais.
func replaceLastID(template, oldID, newID string) (string, bool) {
	i := strings.LastIndex(template, oldID)
	if i < 0 || oldID == "" {
		return "", false
	}
	out := template[:i] + url.QueryEscape(newID) + template[i+len(oldID):]
	return optionalOrQuery.ReplaceAllString(out, ""), true
}

// sanitize troca cada valor privado pelo nome do parâmetro entre chaves
func sanitize(message string, private map[string]string) string {
	for name, value := range private {
		if value == "" {
			continue
		}
		message = strings.ReplaceAll(message, value, "{"+name+"}")
		if escaped := url.QueryEscape(value); escaped != value {
			message = strings.ReplaceAll(message, escaped, "{"+name+"}")
		}
	}
	return message
}
