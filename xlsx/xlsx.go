// Package xlsx builds a minimal single-sheet OOXML spreadsheet from
// collected items. The package is a zip archive of exactly five hand-built
// XML parts; no shared-strings table is emitted, every text cell is an
// inline string.
package xlsx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"

	"github.com/herrera199898/Pro-descuento/models"
)

// Header is the fixed first worksheet row.
var Header = []string{"Posicion", "Titulo", "Precio", "Descuento", "Estado", "Link"}

const (
	contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
		`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
		`<Default Extension="xml" ContentType="application/xml"/>` +
		`<Override PartName="/xl/workbook.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.sheet.main+xml"/>` +
		`<Override PartName="/xl/worksheets/sheet1.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.worksheet+xml"/>` +
		`</Types>`

	relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
		`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="xl/workbook.xml"/>` +
		`</Relationships>`

	workbookXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" ` +
		`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">` +
		`<sheets><sheet name="Resultados" sheetId="1" r:id="rId1"/></sheets>` +
		`</workbook>`

	workbookRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
		`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="worksheets/sheet1.xml"/>` +
		`</Relationships>`
)

// Encode serializes items into spreadsheet bytes: one header row followed
// by one row per item, in order.
func Encode(items []*models.Item) ([]byte, error) {
	var sheet strings.Builder
	sheet.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	sheet.WriteString(`<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>`)

	writeRow(&sheet, 1, headerCells())
	for i, item := range items {
		writeRow(&sheet, i+2, itemCells(i+1, item))
	}
	sheet.WriteString(`</sheetData></worksheet>`)

	var buf bytes.Buffer
	archive := zip.NewWriter(&buf)
	parts := []struct {
		name, body string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", relsXML},
		{"xl/workbook.xml", workbookXML},
		{"xl/_rels/workbook.xml.rels", workbookRelsXML},
		{"xl/worksheets/sheet1.xml", sheet.String()},
	}
	for _, part := range parts {
		w, err := archive.Create(part.name)
		if err != nil {
			return nil, fmt.Errorf("create part %s: %w", part.name, err)
		}
		if _, err := w.Write([]byte(part.body)); err != nil {
			return nil, fmt.Errorf("write part %s: %w", part.name, err)
		}
	}
	if err := archive.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

// cell is one worksheet cell; numeric cells carry a typed value, all other
// cells are escaped inline strings.
type cell struct {
	number  int
	text    string
	numeric bool
}

func headerCells() []cell {
	cells := make([]cell, len(Header))
	for i, h := range Header {
		cells[i] = cell{text: h}
	}
	return cells
}

func itemCells(position int, item *models.Item) []cell {
	discount := ""
	if item.DiscountPercent != nil {
		discount = fmt.Sprintf("%d%%", *item.DiscountPercent)
	}
	return []cell{
		{number: position, numeric: true},
		{text: item.Title},
		{text: item.Price},
		{text: discount},
		{text: item.Condition.Label()},
		{text: item.Link},
	}
}

func writeRow(sheet *strings.Builder, row int, cells []cell) {
	fmt.Fprintf(sheet, `<row r="%d">`, row)
	for i, c := range cells {
		ref := fmt.Sprintf("%s%d", ColumnName(i+1), row)
		if c.numeric {
			fmt.Fprintf(sheet, `<c r="%s"><v>%d</v></c>`, ref, c.number)
		} else {
			fmt.Fprintf(sheet, `<c r="%s" t="inlineStr"><is><t>%s</t></is></c>`, ref, Escape(c.text))
		}
	}
	sheet.WriteString(`</row>`)
}

// ColumnName converts a 1-based column index to its spreadsheet letters
// (1 -> A, 26 -> Z, 27 -> AA).
func ColumnName(n int) string {
	var col []byte
	for n > 0 {
		n--
		col = append([]byte{byte('A' + n%26)}, col...)
		n /= 26
	}
	return string(col)
}

var xmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// Escape entity-escapes XML special characters in text content.
func Escape(value string) string {
	return xmlReplacer.Replace(value)
}
