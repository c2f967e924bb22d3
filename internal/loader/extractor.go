package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ErrInvalidUTF8 is returned by text extractors when a file is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("file is not valid UTF-8")

// Extractor is one strategy for turning a file into plain text. Extractors
// are tried in order by the [Loader]; an error or an empty result hands the
// file to the next extractor in the chain.
type Extractor interface {
	// Name identifies the strategy in diagnostics.
	Name() string
	// Extract returns the text content of the file at path.
	Extract(ctx context.Context, path string) (string, error)
}

// TextExtractor reads a file verbatim as UTF-8.
type TextExtractor struct{}

// Name implements Extractor.
func (TextExtractor) Name() string { return "text" }

// Extract implements Extractor.
func (TextExtractor) Extract(_ context.Context, path string) (string, error) {
	return readUTF8(path)
}

// MarkdownExtractor renders markdown to plain text by walking the goldmark
// AST, dropping markup such as emphasis markers, link targets and heading
// hashes while keeping the prose and code block bodies.
type MarkdownExtractor struct{}

// Name implements Extractor.
func (MarkdownExtractor) Name() string { return "markdown" }

// Extract implements Extractor.
func (MarkdownExtractor) Extract(_ context.Context, path string) (string, error) {
	content, err := readUTF8(path)
	if err != nil {
		return "", err
	}
	return markdownToText([]byte(content)), nil
}

func markdownToText(source []byte) string {
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var buf strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			switch n.(type) {
			case *ast.Paragraph, *ast.Heading, *ast.ListItem, *ast.TextBlock:
				buf.WriteString("\n")
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			buf.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				buf.WriteString("\n")
			}
		case *ast.String:
			buf.Write(node.Value)
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := node.Lines()
			for i := range lines.Len() {
				seg := lines.At(i)
				buf.Write(seg.Value(source))
			}
			buf.WriteString("\n")
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return buf.String()
}

// PDFTextExtractor is the primary PDF strategy: the whole document's plain
// text in one pass.
type PDFTextExtractor struct{}

// Name implements Extractor.
func (PDFTextExtractor) Name() string { return "pdf-plain" }

// Extract implements Extractor. Panics raised by the PDF parser on malformed
// input are converted into errors.
func (PDFTextExtractor) Extract(_ context.Context, path string) (result string, err error) {
	defer recoverAsError(&err)

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("plain text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	return buf.String(), nil
}

// PDFRowExtractor is the fallback PDF strategy: it reads page by page and
// reassembles text row by row. A page that fails to parse is skipped, so a
// single corrupt page does not lose the rest of the document.
type PDFRowExtractor struct{}

// Name implements Extractor.
func (PDFRowExtractor) Name() string { return "pdf-rows" }

// Extract implements Extractor.
func (PDFRowExtractor) Extract(ctx context.Context, path string) (result string, err error) {
	defer recoverAsError(&err)

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	var (
		buf     strings.Builder
		pageErr error
	)
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := pageRows(page)
		if err != nil {
			pageErr = errors.Join(pageErr, fmt.Errorf("page %d: %w", i, err))
			continue
		}
		for _, row := range rows {
			words := make([]string, 0, len(row.Content))
			for _, w := range row.Content {
				words = append(words, w.S)
			}
			buf.WriteString(strings.Join(words, " "))
			buf.WriteString("\n")
		}
		buf.WriteString("\n")
	}

	if buf.Len() == 0 && pageErr != nil {
		return "", pageErr
	}
	return buf.String(), nil
}

func pageRows(page pdf.Page) (rows pdf.Rows, err error) {
	defer recoverAsError(&err)
	return page.GetTextByRow()
}

func recoverAsError(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("parser panic: %v", r)
	}
}

func readUTF8(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", ErrInvalidUTF8
	}
	return string(data), nil
}
