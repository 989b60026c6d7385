package document

import (
	"fmt"
	"os"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
)

// droppedElements never carry document content.
const droppedElements = "script, style, nav, noscript, iframe, template"

func extractHTMLFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	return htmlToMarkdown(doc)
}

// htmlToMarkdown strips non-content elements and converts the rest.
func htmlToMarkdown(doc *goquery.Document) (string, error) {
	doc.Find(droppedElements).Remove()

	html, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	markdown, err := md.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("convert html: %w", err)
	}
	return cleanWhitespace(markdown), nil
}

// cleanWhitespace collapses runs of blank lines into one.
func cleanWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var result []string
	blankCount := 0

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blankCount++
			if blankCount <= 1 {
				result = append(result, "")
			}
		} else {
			blankCount = 0
			result = append(result, line)
		}
	}

	return strings.TrimSpace(strings.Join(result, "\n"))
}
