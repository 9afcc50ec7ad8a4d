package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// Normalize strips non-printable characters, trims the ends and collapses inner whitespace.
func Normalize(text string) string {
	text = removeNonPrintable(text)
	text = strings.Trim(text, " \t\n")
	return innerWhitespace.ReplaceAllString(text, " ")
}

// NodeText returns the normalized text of every node in the selection, in document order.
func NodeText(sel *goquery.Selection) []string {
	out := make([]string, 0, len(sel.Nodes))
	for _, n := range sel.Nodes {
		out = append(out, Normalize(GetText(n)))
	}
	return out
}

// InputValue returns the `value` attribute of the first `<input name=...>`.
func InputValue(doc *goquery.Document, name string) (string, bool) {
	return doc.Find("input[name='" + name + "']").First().Attr("value")
}
