package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func buildXLSX(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "name"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "qty"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "bolts"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", 12))
	_, err := f.NewSheet("Notes")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Notes", "A1", "reorder monthly"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

// buildPDF writes a minimal PDF with one Helvetica text line per page.
func buildPDF(t *testing.T, pages ...string) []byte {
	t.Helper()
	n := len(pages)
	fontObj := 3 + 2*n
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
	}
	kids := make([]string, n)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}
	objects = append(objects, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	for i, text := range pages {
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>", fontObj, 4+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}
	objects = append(objects, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestRegistry_Extract(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()

	docx := buildDOCX(t, `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Quarterly</w:t></w:r><w:r><w:t xml:space="preserve"> report</w:t></w:r></w:p>
<w:p><w:r><w:t>Revenue</w:t><w:tab/><w:t>up</w:t></w:r></w:p>
</w:body>
</w:document>`)

	tests := []struct {
		name string
		ext  string
		data []byte
		want string
	}{
		{"txt", "txt", []byte("plain text"), "plain text"},
		{"md with dot and case", ".MD", []byte("# Title\nbody"), "# Title\nbody"},
		{"txt strips bom", "txt", []byte("\ufeffhello"), "hello"},
		{
			"html",
			"html",
			[]byte(`<html><head><title>t</title><script>var x=1;</script></head>
<body><h1>Heading</h1><div><p>First <b>para</b>.</p><ul><li>item</li></ul></div></body></html>`),
			"Heading\nFirst para.\nitem",
		},
		{"html without blocks", "html", []byte(`<body><span>just  text</span></body>`), "just  text"},
		{"docx", "docx", docx, "Quarterly report\nRevenue\tup"},
		{"pdf", "pdf", buildPDF(t, "Quarterly report", "Revenue up"), "Quarterly report\nRevenue up"},
		{"xlsx", "xlsx", buildXLSX(t), "name\tqty\nbolts\t12\nreorder monthly"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Extract(ctx, tt.ext, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistry_Errors(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()

	tests := []struct {
		name    string
		ext     string
		data    []byte
		wantErr error
	}{
		{"unsupported", "odt", []byte("PK"), ErrUnsupportedType},
		{"pdf bad header", "pdf", []byte("%PDF-1.4 truncated"), ErrCorrupt},
		{"pdf missing trailer", "pdf", append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), 200)...), ErrCorrupt},
		{"invalid utf8", "txt", []byte{0xff, 0xfe, 0xfd}, ErrInvalidEncoding},
		{"docx not a zip", "docx", []byte("not a zip"), ErrCorrupt},
		{"docx missing body", "docx", func() []byte {
			var buf bytes.Buffer
			zw := zip.NewWriter(&buf)
			_, _ = zw.Create("other.xml")
			_ = zw.Close()
			return buf.Bytes()
		}(), ErrCorrupt},
		{"xlsx garbage", "xlsx", []byte("garbage"), ErrCorrupt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Extract(ctx, tt.ext, tt.data)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRegistry_Supports(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.Supports(".DOCX"))
	assert.True(t, r.Supports("pdf"))
	assert.False(t, r.Supports("odt"))
	assert.Equal(t, []string{"docx", "htm", "html", "md", "pdf", "txt", "xlsx"}, r.Extensions())
}

func TestExt(t *testing.T) {
	assert.Equal(t, "md", Ext("Notes.MD"))
	assert.Equal(t, "", Ext("README"))
	assert.Equal(t, "gz", Ext("archive.tar.gz"))
}

func TestRegistry_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRegistry().Extract(ctx, "txt", []byte("x"))
	require.ErrorIs(t, err, context.Canceled)
}
