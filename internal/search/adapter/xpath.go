package adapter

import (
	"strconv"
	"strings"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Subconjunto de XPath usado nos descritores de resources:
//   - //li[@class='result']  descendente com predicado de atributo
//   - ./h3/a, .//p           caminhos relativos ao item
//   - //tr[2]                predicado posicional
//   - .//a/@href             atributo no último passo
//   - .//h3/text()           texto (equivale a .//h3)

type xpathStep struct {
	descendant bool
	tag        string
	attrName   string
	attrValue  string
	position   int
}

// evaluateXPath devolve os nós que casam com a expressão e, se houver, o
// atributo pedido no final do caminho.
func evaluateXPath(roots []*xhtml.Node, expr string) ([]*xhtml.Node, string) {
	steps, attr := compileXPath(expr)
	current := roots
	for _, step := range steps {
		var next []*xhtml.Node
		for _, n := range current {
			if step.descendant {
				next = append(next, findDescendants(n, step)...)
			} else {
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if matchesStep(c, step) {
						next = append(next, c)
					}
				}
			}
		}
		current = next
	}
	return current, attr
}

func compileXPath(expr string) ([]xpathStep, string) {
	expr = strings.TrimSpace(expr)
	expr = strings.TrimSuffix(expr, "/text()")

	attr := ""
	if i := strings.LastIndex(expr, "/@"); i >= 0 {
		attr = expr[i+2:]
		expr = expr[:i]
	} else if strings.HasPrefix(expr, "@") {
		return nil, expr[1:]
	}

	expr = strings.TrimPrefix(expr, ".")
	var steps []xpathStep
	descendant := false
	for len(expr) > 0 {
		switch {
		case strings.HasPrefix(expr, "//"):
			descendant = true
			expr = expr[2:]
			continue
		case strings.HasPrefix(expr, "/"):
			expr = expr[1:]
			continue
		}
		end := strings.IndexByte(expr, '/')
		// barras dentro de predicados não separam passos
		if br := strings.IndexByte(expr, '['); br >= 0 && (end < 0 || br < end) {
			if close := strings.IndexByte(expr[br:], ']'); close >= 0 {
				rest := expr[br+close+1:]
				if next := strings.IndexByte(rest, '/'); next >= 0 {
					end = br + close + 1 + next
				} else {
					end = -1
				}
			}
		}
		raw := expr
		if end >= 0 {
			raw = expr[:end]
			expr = expr[end:]
		} else {
			expr = ""
		}
		if raw == "" || raw == "." {
			continue
		}
		step := parseStep(raw)
		step.descendant = descendant
		steps = append(steps, step)
		descendant = false
	}
	return steps, attr
}

// parseStep interpreta "div", "div[@class='x']", "div[@data-x]" e "div[2]"
func parseStep(raw string) xpathStep {
	idx := strings.IndexByte(raw, '[')
	if idx < 0 {
		return xpathStep{tag: strings.ToLower(raw)}
	}
	step := xpathStep{tag: strings.ToLower(raw[:idx])}
	pred := strings.TrimRight(raw[idx+1:], "]")

	if n, err := strconv.Atoi(pred); err == nil {
		step.position = n
		return step
	}
	if strings.HasPrefix(pred, "@") {
		expr := pred[1:]
		if eq := strings.IndexByte(expr, '='); eq >= 0 {
			step.attrName = expr[:eq]
			step.attrValue = strings.Trim(expr[eq+1:], `'"`)
		} else {
			step.attrName = expr
		}
	}
	return step
}

func findDescendants(root *xhtml.Node, step xpathStep) []*xhtml.Node {
	var matches []*xhtml.Node
	var walk func(*xhtml.Node)
	walk = func(n *xhtml.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if matchesStep(c, step) {
				matches = append(matches, c)
			}
			walk(c)
		}
	}
	walk(root)
	return matches
}

func matchesStep(n *xhtml.Node, step xpathStep) bool {
	if n.Type != xhtml.ElementNode {
		return false
	}
	if step.tag != "*" && !strings.EqualFold(n.Data, step.tag) {
		return false
	}
	if step.attrName != "" {
		if step.attrValue != "" {
			return getAttr(n, step.attrName) == step.attrValue
		}
		return hasAttr(n, step.attrName)
	}
	if step.position > 0 {
		pos := 0
		for s := n.Parent.FirstChild; s != nil; s = s.NextSibling {
			if s.Type == xhtml.ElementNode && s.Data == n.Data {
				pos++
				if s == n {
					return pos == step.position
				}
			}
		}
		return false
	}
	return true
}

func getAttr(n *xhtml.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *xhtml.Node, name string) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return true
		}
	}
	return false
}

func collectText(n *xhtml.Node) string {
	var sb strings.Builder
	var f func(*xhtml.Node)
	f = func(n *xhtml.Node) {
		if n.Type == xhtml.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		if n.Type == xhtml.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}
