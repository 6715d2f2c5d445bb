package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestExtractBytes_plain(t *testing.T) {
	e := NewExtractor()
	tests := []struct {
		name    string
		content []byte
		ext     string
		want    string
	}{
		{"collapses whitespace", []byte("Food pantry\n\n  open Tuesdays "), ".txt", "Food pantry open Tuesdays"},
		{"utf8", []byte("caf\xc3\xa9"), ".md", "café"},
		{"invalid utf8", []byte("hello\x80world"), ".txt", "hello�world"},
		{"bom", append([]byte{0xEF, 0xBB, 0xBF}, "Clinic"...), ".txt", "Clinic"},
		{"no extension", []byte("raw content"), "", "raw content"},
		{"upper case ext", []byte("shout"), ".TXT", "shout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.ExtractBytes(tt.content, tt.ext)
			if err != nil {
				t.Fatalf("ExtractBytes: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractBytes_unsupported(t *testing.T) {
	e := NewExtractor()
	_, err := e.ExtractBytes([]byte{0x89, 'P', 'N', 'G'}, ".png")
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
	if e.Supported(".png") {
		t.Error(".png should not be supported")
	}
	if !e.Supported(".PDF") {
		t.Error(".PDF should be supported")
	}
}

func testDocx(body string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create("word/document.xml")
	_, _ = fw.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body + `</w:body></w:document>`))
	_ = w.Close()
	return buf.Bytes()
}

func TestExtractBytes_docx(t *testing.T) {
	e := NewExtractor()
	content := testDocx(`<w:p w:rsidR="00A1"><w:r><w:t>Free tax</w:t></w:r><w:r><w:t xml:space="preserve"> help</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Walk-ins</w:t><w:tab/><w:t>welcome</w:t></w:r></w:p>`)
	got, err := e.ExtractBytes(content, ".docx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "Free tax help Walk-ins welcome" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_docxErrors(t *testing.T) {
	e := NewExtractor()
	if _, err := e.ExtractBytes([]byte("not a zip"), ".docx"); err == nil {
		t.Error("expected error for non-zip docx")
	}
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	_, _ = w.Create("other.xml")
	_ = w.Close()
	if _, err := e.ExtractBytes(buf.Bytes(), ".docx"); err == nil {
		t.Error("expected error when document.xml is missing")
	}
}

func TestExtractBytes_excel(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Title")
	f.SetCellValue("Sheet1", "A2", "Value 1")
	f.SetCellValue("Sheet1", "C2", "Value 2")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	got, err := NewExtractor().ExtractBytes(buf.Bytes(), ".xlsx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "Title Value 1 | Value 2" {
		t.Errorf("got %q", got)
	}
}

func TestTable(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	rows := [][]any{
		{" Resource_Name ", "City", "Languages", ""},
		{"Eastside Pantry", "Springfield", "English, Spanish", "ignored"},
		{"", "", "", ""},
		{"Rent Relief", "", "English"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}

	got, err := Table(bytes.NewReader(buf.Bytes()), "")
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d: %v", len(got), got)
	}
	if got[0]["resource_name"] != "Eastside Pantry" || got[0]["languages"] != "English, Spanish" {
		t.Errorf("row 0 = %v", got[0])
	}
	if _, ok := got[0][""]; ok {
		t.Error("unnamed column should be dropped")
	}
	if _, ok := got[1]["city"]; ok {
		t.Error("empty cells should be omitted")
	}
}

func TestExtract_files(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "flyer.txt")
	if err := os.WriteFile(txt, []byte("Diaper bank"), 0600); err != nil {
		t.Fatal(err)
	}
	docx := filepath.Join(dir, "flyer.docx")
	if err := os.WriteFile(docx, testDocx(`<w:p><w:r><w:t>Legal aid</w:t></w:r></w:p>`), 0600); err != nil {
		t.Fatal(err)
	}

	e := NewExtractor()
	for path, want := range map[string]string{txt: "Diaper bank", docx: "Legal aid"} {
		got, err := e.Extract(path)
		if err != nil {
			t.Fatalf("Extract(%s): %v", path, err)
		}
		if got != want {
			t.Errorf("Extract(%s) = %q, want %q", path, got, want)
		}
	}

	if _, err := e.Extract(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("expected error for nonexistent file")
	}
	if _, err := e.Extract(filepath.Join(dir, "photo.jpg")); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestExtensions(t *testing.T) {
	got := NewExtractor().Extensions()
	want := []string{".docx", ".md", ".pdf", ".text", ".txt", ".xlsx"}
	if len(got) != len(want) {
		t.Fatalf("Extensions() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Extensions()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
