package adapter

import (
	"bytes"
	"fmt"
	"html"
	"net/url"
	"sort"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/prefeitura-rio/searsia-node/internal/models"
	"github.com/tidwall/gjson"
	xhtml "golang.org/x/net/html"
)

// Extractor transforma a página bruta de um resource em hits, seguindo
// itempath e extractors do descritor.
type Extractor interface {
	Extract(page []byte, desc models.Descriptor, baseURL string) ([]*models.Hit, error)
}

// DocumentExtractor entende JSON (caminhos gjson), JSONP e HTML/XML
// (subconjunto de XPath).
type DocumentExtractor struct {
	policy *bluemonday.Policy
}

func NewDocumentExtractor() *DocumentExtractor {
	return &DocumentExtractor{policy: bluemonday.StrictPolicy()}
}

var linkFields = map[string]bool{"url": true, "favicon": true, "image": true}

func (e *DocumentExtractor) Extract(page []byte, desc models.Descriptor, baseURL string) ([]*models.Hit, error) {
	mime := strings.ToLower(strings.TrimSpace(strings.SplitN(desc.MimeType, ";", 2)[0]))
	switch mime {
	case "application/json", "":
		return e.extractJSON(page, desc, baseURL)
	case "application/javascript", "text/javascript":
		return e.extractJSON(stripCallback(page), desc, baseURL)
	case "text/html", "application/xml", "text/xml", "application/rss+xml", "application/atom+xml":
		return e.extractMarkup(page, desc, baseURL)
	}
	return nil, fmt.Errorf("tipo MIME não suportado: %s", desc.MimeType)
}

func (e *DocumentExtractor) extractJSON(page []byte, desc models.Descriptor, baseURL string) ([]*models.Hit, error) {
	if !gjson.ValidBytes(page) {
		return nil, fmt.Errorf("JSON inválido")
	}
	items := gjson.ParseBytes(page)
	if desc.ItemPath != "" {
		items = items.Get(desc.ItemPath)
	}
	if !items.IsArray() {
		if !items.Exists() {
			return []*models.Hit{}, nil
		}
		items = gjson.Parse("[" + items.Raw + "]")
	}

	fields := sortedFields(desc.Extractors)
	hits := make([]*models.Hit, 0)
	for _, item := range items.Array() {
		hit := models.NewHit()
		for _, field := range fields {
			v := item.Get(desc.Extractors[field])
			switch v.Type {
			case gjson.String:
				if s := e.clean(field, v.String(), baseURL); s != "" {
					hit.SetString(field, s)
				}
			case gjson.Number:
				hit.SetNumber(field, v.Float())
			case gjson.True, gjson.False:
				hit.Set(field, models.BoolValue(v.Bool()))
			}
		}
		if hit.Len() > 0 {
			hits = append(hits, hit)
		}
	}
	return hits, nil
}

func (e *DocumentExtractor) extractMarkup(page []byte, desc models.Descriptor, baseURL string) ([]*models.Hit, error) {
	doc, err := xhtml.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("erro ao interpretar documento: %w", err)
	}
	itemPath := desc.ItemPath
	if itemPath == "" {
		itemPath = "//body"
	}
	items, _ := evaluateXPath([]*xhtml.Node{doc}, itemPath)

	fields := sortedFields(desc.Extractors)
	hits := make([]*models.Hit, 0, len(items))
	for _, item := range items {
		hit := models.NewHit()
		for _, field := range fields {
			nodes, attr := evaluateXPath([]*xhtml.Node{item}, desc.Extractors[field])
			if len(nodes) == 0 {
				continue
			}
			var value string
			if attr != "" {
				value = getAttr(nodes[0], attr)
			} else {
				value = collectText(nodes[0])
			}
			if s := e.clean(field, value, baseURL); s != "" {
				hit.SetString(field, s)
			}
		}
		if hit.Len() > 0 {
			hits = append(hits, hit)
		}
	}
	return hits, nil
}

// clean remove marcação, decodifica entidades e resolve links relativos
func (e *DocumentExtractor) clean(field, value, baseURL string) string {
	value = strings.TrimSpace(html.UnescapeString(e.policy.Sanitize(value)))
	if linkFields[field] && value != "" && baseURL != "" {
		if base, err := url.Parse(baseURL); err == nil {
			if ref, err := url.Parse(value); err == nil {
				value = base.ResolveReference(ref).String()
			}
		}
	}
	return value
}

func sortedFields(extractors map[string]string) []string {
	fields := make([]string, 0, len(extractors))
	for f := range extractors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// stripCallback remove o envelope "callback( ... );" de respostas JSONP
func stripCallback(page []byte) []byte {
	start := bytes.IndexByte(page, '(')
	end := bytes.LastIndexByte(page, ')')
	if start < 0 || end <= start {
		return page
	}
	trimmed := bytes.TrimSpace(page[:start])
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return page
	}
	return page[start+1 : end]
}

var _ Extractor = (*DocumentExtractor)(nil)
