package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestExtract_Text(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		content []byte
		want    string
	}{
		{"utf8", "a.txt", []byte("The contract was signed."), "The contract was signed."},
		{"markdown", "b.md", []byte("# Heading\n\nBody"), "# Heading\n\nBody"},
		{"latin1", "c.txt", []byte("caf\xe9 cr\xe8me"), "café crème"},
		{"sniffed", "notes.log", []byte("plain log line\nanother line\n"), "plain log line\nanother line\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.file, tt.content)
			got, err := Extract(context.Background(), path)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestExtract_HTML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "page.html", []byte(`<html><head><style>p{color:red}</style></head>
<body><nav><a href="/">Home</a></nav><h1>Quarterly Report</h1>
<p>Revenue grew by <b>12%</b>.</p><script>alert("x")</script></body></html>`))

	got, err := Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"# Quarterly Report", "**12%**"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in %q", want, got)
		}
	}
	for _, unwanted := range []string{"alert", "color:red", "Home"} {
		if strings.Contains(got, unwanted) {
			t.Errorf("unexpected %q in %q", unwanted, got)
		}
	}
}

func TestExtract_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	f := excelize.NewFile()
	_ = f.SetCellValue("Sheet1", "A1", "invoice")
	_ = f.SetCellValue("Sheet1", "B1", "total")
	_ = f.SetCellValue("Sheet1", "A2", "INV-7")
	_ = f.SetCellValue("Sheet1", "B2", 42)
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	_ = f.Close()

	got, err := Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "## Sheet1\ninvoice\ttotal\nINV-7\t42\n"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

// buildPDF writes a minimal PDF with one page per entry of contents. An
// empty entry yields a page without a content stream.
func buildPDF(contents ...string) []byte {
	var objs []string
	kids := make([]string, len(contents))
	next := 4
	var pages []string
	for i, c := range contents {
		page := next
		kids[i] = fmt.Sprintf("%d 0 R", page)
		next++
		dict := "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >>"
		if c != "" {
			dict += fmt.Sprintf(" /Contents %d 0 R", next)
			pages = append(pages, dict+" >>", fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(c), c))
			next++
			continue
		}
		pages = append(pages, dict+" >>")
	}
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(contents)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	objs = append(objs, pages...)

	var sb strings.Builder
	sb.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = sb.Len()
		fmt.Fprintf(&sb, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := sb.Len()
	fmt.Fprintf(&sb, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&sb, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&sb, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return []byte(sb.String())
}

func TestExtract_PDF(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "survey.pdf", buildPDF("BT /F1 12 Tf 72 720 Td (Ocean Survey) Tj ET"))

	got, err := Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "Ocean Survey") {
		t.Errorf("expected page text, got %q", got)
	}
}

func TestExtract_PDFWithoutText(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "scan.pdf", buildPDF("", ""))

	if n, err := PageCount(path); err != nil || n != 2 {
		t.Fatalf("expected 2 pages, got %d (%v)", n, err)
	}

	_, err := Extract(context.Background(), path)
	if !errors.Is(err, ErrNoTextLayer) {
		t.Fatalf("expected ErrNoTextLayer, got %v", err)
	}
	var nt *NoTextLayerError
	if !errors.As(err, &nt) || nt.Pages != 2 {
		t.Errorf("expected page count 2, got %v", err)
	}
	var ee *ExtractError
	if !errors.As(err, &ee) || ee.Path != path {
		t.Errorf("expected ExtractError for %s, got %v", path, err)
	}
}

func TestExtract_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Extract(context.Background(), filepath.Join(dir, "missing.txt")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	var ee *ExtractError
	if _, err := Extract(context.Background(), dir); !errors.As(err, &ee) || !errors.Is(err, ErrNotAFile) {
		t.Errorf("expected ExtractError for directory, got %v", err)
	}

	bin := writeFile(t, dir, "blob.bin", []byte{0x00, 0x01, 0x02, 0xff, 0xfe, 0x00, 0x10})
	if _, err := Extract(context.Background(), bin); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestExtract_PandocMissing(t *testing.T) {
	path := writeFile(t, t.TempDir(), "letter.docx", []byte("not really a docx"))
	r := NewReader(WithPandoc("metaminer-no-such-pandoc"))

	_, err := r.Extract(context.Background(), path)
	if !errors.Is(err, ErrPandocMissing) {
		t.Errorf("expected ErrPandocMissing, got %v", err)
	}
	var ee *ExtractError
	if !errors.As(err, &ee) || ee.Path != path {
		t.Errorf("expected ExtractError for %s, got %v", path, err)
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	small := writeFile(t, dir, "small.txt", []byte("hello"))
	big := writeFile(t, dir, "big.txt", make([]byte, 2048))
	other := writeFile(t, dir, "image.png", []byte("png"))

	tests := []struct {
		name string
		path string
		max  int64
		want error
	}{
		{"ok", small, 1024, nil},
		{"no limit", big, 0, nil},
		{"too large", big, 1024, ErrTooLarge},
		{"extension", other, 1024, ErrUnsupportedFormat},
		{"missing", filepath.Join(dir, "nope.txt"), 1024, ErrNotFound},
		{"directory", dir, 1024, ErrNotAFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.path, tt.max, SupportedExtensions())
			if tt.want == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestValidate_SizeMessage(t *testing.T) {
	big := writeFile(t, t.TempDir(), "big.txt", make([]byte, 3000))
	err := Validate(big, 1000, nil)
	if err == nil || !strings.Contains(err.Error(), "3.0 kB") || !strings.Contains(err.Error(), "1.0 kB") {
		t.Errorf("expected human readable sizes, got %v", err)
	}
}

func TestListDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.txt", []byte("b"))
	writeFile(t, dir, "a.PDF", []byte("a"))
	writeFile(t, dir, "c.png", []byte("c"))
	if err := os.Mkdir(filepath.Join(dir, "sub.txt"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := ListDirectory(dir, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{filepath.Join(dir, "a.PDF"), filepath.Join(dir, "b.txt")}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %q at %d, got %q", want[i], i, got[i])
		}
	}

	if _, err := ListDirectory(filepath.Join(dir, "missing"), nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCleanWhitespace(t *testing.T) {
	got := cleanWhitespace("\n\nA\n\n\n\nB\n  \nC\n\n")
	if want := "A\n\nB\n\nC"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
