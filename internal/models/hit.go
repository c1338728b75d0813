package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Campos reservados de um Hit
const (
	FieldTitle       = "title"
	FieldURL         = "url"
	FieldDescription = "description"
	FieldFavicon     = "favicon"
	FieldRID         = "rid"
	FieldScore       = "score"
	FieldRScore      = "rscore"
	FieldFoundBefore = "foundBefore"
	FieldQuery       = "query"
	FieldRank        = "rank"
	FieldTime        = "time"
)

// ValueKind identifica o tipo escalar guardado em um Value
type ValueKind int

const (
	KindString ValueKind = iota
	KindNumber
	KindBool
)

// Value é um escalar JSON: string, número ou booleano
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
}

func StringValue(s string) Value { return Value{kind: KindString, str: s} }
func NumberValue(f float64) Value { return Value{kind: KindNumber, num: f} }
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

func (v Value) Kind() ValueKind { return v.kind }

// Text retorna o texto do valor e se ele era de fato uma string
func (v Value) Text() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// Float converte o valor para float64. Strings numéricas são aceitas;
// qualquer outra coisa vale 0.
func (v Value) Float() float64 {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) marshal(stripHTML bool) ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	default:
		s := v.str
		if stripHTML {
			s = NoHTML(s)
		}
		return json.Marshal(s)
	}
}

var (
	inlineTags  = regexp.MustCompile(`(?i)</?span[^>]*>|</?b>|</?i>|</?em>|</?strong>`)
	anyMarkup   = regexp.MustCompile(`<[^>]+>|&#?[0-9a-zA-Z]{1,9};`)
	strayAngles = regexp.MustCompile(`[<>]`)
)

// NoHTML remove marcação HTML de um valor textual
func NoHTML(value string) string {
	value = inlineTags.ReplaceAllString(value, "")
	value = anyMarkup.ReplaceAllString(value, "")
	return strayAngles.ReplaceAllString(value, "")
}

// Hit é um resultado de busca: um mapa ordenado de chaves para escalares.
// Chaves desconhecidas são preservadas na ordem em que chegaram.
type Hit struct {
	keys   []string
	values map[string]Value
}

// NewHit cria um hit vazio
func NewHit() *Hit {
	return &Hit{values: make(map[string]Value)}
}

// NewHitWith cria um hit com os campos de apresentação mais comuns
func NewHitWith(title, description, url, favicon string) *Hit {
	h := NewHit()
	h.SetString(FieldTitle, title)
	h.SetString(FieldDescription, description)
	h.SetString(FieldURL, url)
	h.SetString(FieldFavicon, favicon)
	return h
}

func (h *Hit) Set(key string, v Value) {
	if h.values == nil {
		h.values = make(map[string]Value)
	}
	if _, ok := h.values[key]; !ok {
		h.keys = append(h.keys, key)
	}
	h.values[key] = v
}

func (h *Hit) SetString(key, value string) { h.Set(key, StringValue(value)) }
func (h *Hit) SetNumber(key string, f float64) { h.Set(key, NumberValue(f)) }

// PutIfEmpty grava o valor somente se a chave ainda não existe
func (h *Hit) PutIfEmpty(key string, v Value) {
	if !h.Has(key) {
		h.Set(key, v)
	}
}

func (h *Hit) Get(key string) (Value, bool) {
	v, ok := h.values[key]
	return v, ok
}

// GetString retorna o valor textual da chave, ou "" se ausente ou não textual
func (h *Hit) GetString(key string) string {
	v, ok := h.values[key]
	if !ok {
		return ""
	}
	s, _ := v.Text()
	return s
}

func (h *Hit) Has(key string) bool {
	_, ok := h.values[key]
	return ok
}

func (h *Hit) Delete(key string) {
	if !h.Has(key) {
		return
	}
	delete(h.values, key)
	for i, k := range h.keys {
		if k == key {
			h.keys = append(h.keys[:i], h.keys[i+1:]...)
			break
		}
	}
}

// Keys retorna as chaves na ordem de inserção
func (h *Hit) Keys() []string {
	out := make([]string, len(h.keys))
	copy(out, h.keys)
	return out
}

func (h *Hit) Len() int { return len(h.keys) }

func (h *Hit) Title() string { return h.GetString(FieldTitle) }
func (h *Hit) URL() string { return h.GetString(FieldURL) }
func (h *Hit) Description() string { return h.GetString(FieldDescription) }
func (h *Hit) RID() string { return h.GetString(FieldRID) }

func (h *Hit) Score() float64 {
	v, ok := h.values[FieldScore]
	if !ok {
		return 0
	}
	return v.Float()
}

func (h *Hit) RScore() float64 {
	v, ok := h.values[FieldRScore]
	if !ok {
		return 0
	}
	return v.Float()
}

func (h *Hit) SetScore(score float64) { h.SetNumber(FieldScore, score) }
func (h *Hit) SetRScore(score float64) { h.SetNumber(FieldRScore, score) }

// ID identifica o hit no arquivo durável: rid@url, ou rid@title quando
// não há url. O mesmo url pode existir uma vez por resource.
func (h *Hit) ID() string {
	key := h.URL()
	if key == "" {
		key = h.Title()
	}
	return h.RID() + "@" + key
}

// IndexText concatena todos os valores textuais do hit
func (h *Hit) IndexText() string {
	var sb strings.Builder
	for _, k := range h.keys {
		if s, ok := h.values[k].Text(); ok {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(s)
		}
	}
	return strings.TrimSpace(sb.String())
}

// Clone devolve uma cópia independente do hit
func (h *Hit) Clone() *Hit {
	c := &Hit{
		keys:   make([]string, len(h.keys)),
		values: make(map[string]Value, len(h.values)),
	}
	copy(c.keys, h.keys)
	for k, v := range h.values {
		c.values[k] = v
	}
	return c
}

// Without devolve uma cópia sem as chaves informadas
func (h *Hit) Without(keys ...string) *Hit {
	c := h.Clone()
	for _, k := range keys {
		c.Delete(k)
	}
	return c
}

// Compare ordena por rscore, depois rid, depois score (crescente).
// Hits sem rid vêm antes dos que têm.
func (h *Hit) Compare(other *Hit) int {
	if c := compareFloat(h.RScore(), other.RScore()); c != 0 {
		return c
	}
	if c := strings.Compare(h.RID(), other.RID()); c != 0 {
		return c
	}
	return compareFloat(h.Score(), other.Score())
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// MarshalJSON emite as chaves em ordem, com strings sem HTML
func (h *Hit) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range h.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := h.values[k].marshal(true)
		if err != nil {
			return nil, fmt.Errorf("campo %q: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON aceita um objeto JSON, mantém apenas escalares e remove
// HTML dos valores textuais. Objetos, listas e null são ignorados.
func (h *Hit) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("hit deve ser um objeto JSON")
	}

	h.keys = nil
	h.values = make(map[string]Value)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("chave inválida no hit: %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		switch raw[0] {
		case '"':
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return err
			}
			h.Set(key, StringValue(NoHTML(s)))
		case 't', 'f':
			var b bool
			if err := json.Unmarshal(raw, &b); err != nil {
				return err
			}
			h.Set(key, BoolValue(b))
		case '{', '[', 'n':
			// não escalar
		default:
			f, err := strconv.ParseFloat(string(raw), 64)
			if err != nil {
				return fmt.Errorf("campo %q: %w", key, err)
			}
			h.Set(key, NumberValue(f))
		}
	}
	_, err = dec.Token()
	return err
}
