package utils

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// HTMLFacts holds the markup features relevant to platform detection,
// collected in document order by a single traversal.
type HTMLFacts struct {
	ClassTokens   []string // class attribute tokens, original case
	DataAttrNames []string // data-* attribute names (lower-cased by the parser)
	HasDataPath   bool
	Comments      []string // comment node contents, original case
	MetaGenerator string   // content of the first <meta name="generator">
}

// ExtractHTMLFacts parses body as HTML and collects the facts used by the
// platform scorer. Parsing is best-effort: malformed markup yields
// whatever the parser recovered, never an error.
func ExtractHTMLFacts(body []byte) HTMLFacts {
	var facts HTMLFacts
	if len(body) == 0 {
		return facts
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return facts
	}

	var f func(*html.Node)
	f = func(n *html.Node) {
		switch n.Type {
		case html.CommentNode:
			facts.Comments = append(facts.Comments, n.Data)
		case html.ElementNode:
			for _, attr := range n.Attr {
				switch {
				case attr.Key == "class":
					facts.ClassTokens = append(facts.ClassTokens, strings.Fields(attr.Val)...)
				case attr.Key == "data-path":
					facts.HasDataPath = true
				case strings.HasPrefix(attr.Key, "data-"):
					facts.DataAttrNames = append(facts.DataAttrNames, attr.Key)
				}
			}
			if n.Data == "meta" && facts.MetaGenerator == "" {
				var name, content string
				for _, attr := range n.Attr {
					switch attr.Key {
					case "name":
						name = attr.Val
					case "content":
						content = attr.Val
					}
				}
				if strings.EqualFold(name, "generator") && content != "" {
					facts.MetaGenerator = content
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(doc)

	return facts
}
