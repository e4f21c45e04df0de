package fulltext

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Prose contains the cleaned paragraph text of a page.
type Prose struct {
	Text       string
	WordCount  int
	IsReliable bool
}

// minReliableWords is the word count below which extracted prose is treated as boilerplate.
const minReliableWords = 40

// ExtractProse parses a news page and collects its body paragraphs.
// It prefers the <article> element, then <main>, then <body>.
func ExtractProse(r io.Reader) (*Prose, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	root := findElement(doc, atom.Article)
	if root == nil {
		root = findElement(doc, atom.Main)
	}
	if root == nil {
		root = findElement(doc, atom.Body)
	}

	var paragraphs []string
	var words int
	if root != nil {
		collectParagraphs(root, &paragraphs, &words)
	}

	return &Prose{
		Text:       strings.Join(paragraphs, "\n\n"),
		WordCount:  words,
		IsReliable: words >= minReliableWords,
	}, nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if res := findElement(c, a); res != nil {
			return res
		}
	}
	return nil
}

// collectParagraphs walks the subtree depth-first, skipping page chrome.
func collectParagraphs(n *html.Node, out *[]string, words *int) {
	if n.Type == html.ElementNode {
		if isChrome(n) {
			return
		}
		if n.DataAtom == atom.P {
			text := cleanParagraph(n)
			if text != "" {
				*out = append(*out, text)
				*words += len(strings.Fields(text))
			}
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectParagraphs(c, out, words)
	}
}

func cleanParagraph(p *html.Node) string {
	var b strings.Builder
	traverseParagraph(p, &b)
	return strings.Join(strings.Fields(b.String()), " ")
}

func traverseParagraph(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Sup:
			return
		case atom.Br:
			b.WriteString(" ")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		traverseParagraph(c, b)
	}
}

// noiseClasses mark containers that hold no article prose on typical news sites.
var noiseClasses = []string{
	"related", "newsletter", "subscribe", "comments", "share", "social",
	"advert", "promo", "paywall", "byline", "caption", "footer", "sidebar",
}

func isChrome(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Nav, atom.Footer, atom.Aside, atom.Header, atom.Figure, atom.Form,
		atom.Script, atom.Style, atom.Noscript, atom.Iframe:
		return true
	}
	for _, a := range n.Attr {
		if a.Key != "class" && a.Key != "id" {
			continue
		}
		val := strings.ToLower(a.Val)
		for _, c := range noiseClasses {
			if strings.Contains(val, c) {
				return true
			}
		}
	}
	return false
}
