package element

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/pagekit/internal/models"
)

var (
	ErrColumnNotFound = errors.New("column not found")
	ErrRowNotFound    = errors.New("row not found")
)

// Table reads a <table> by parsing its outerHTML in one round trip.
// Rows and columns are 0-based; the header row is not counted as a row.
type Table struct {
	*Handle
}

func NewTable(h *Handle) *Table {
	return &Table{Handle: h}
}

// TableData is a parsed snapshot of a table
type TableData struct {
	Headers []string
	Rows    [][]string

	headerInBody bool
}

// Snapshot fetches and parses the table's current markup
func (t *Table) Snapshot(ctx context.Context) (*TableData, error) {
	markup, err := t.Property(ctx, "outerHTML")
	if err != nil {
		return nil, err
	}
	data, err := ParseTable(markup)
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", t, err)
	}
	return data, nil
}

// ParseTable extracts header and body cells from table markup
func ParseTable(markup string) (*TableData, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("markup holds no table")
	}

	data := &TableData{}
	table.ChildrenFiltered("thead, tbody, tfoot").ChildrenFiltered("tr").Each(func(_ int, tr *goquery.Selection) {
		if data.Headers == nil && tr.ChildrenFiltered("td").Length() == 0 && tr.ChildrenFiltered("th").Length() > 0 {
			tr.ChildrenFiltered("th").Each(func(_ int, th *goquery.Selection) {
				data.Headers = append(data.Headers, cellText(th))
			})
			data.headerInBody = goquery.NodeName(tr.Parent()) == "tbody"
			return
		}
		var row []string
		tr.ChildrenFiltered("td, th").Each(func(_ int, td *goquery.Selection) {
			row = append(row, cellText(td))
		})
		if len(row) > 0 {
			data.Rows = append(data.Rows, row)
		}
	})
	return data, nil
}

func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// ColumnIndex returns the 0-based index of header
func (d *TableData) ColumnIndex(header string) (int, error) {
	for i, h := range d.Headers {
		if strings.EqualFold(h, header) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrColumnNotFound, header)
}

func (d *TableData) ColumnCount() int {
	if len(d.Headers) > 0 {
		return len(d.Headers)
	}
	if len(d.Rows) > 0 {
		return len(d.Rows[0])
	}
	return 0
}

// Cell returns the text at row, col
func (d *TableData) Cell(row, col int) (string, error) {
	if row < 0 || row >= len(d.Rows) {
		return "", fmt.Errorf("%w: index %d of %d", ErrRowNotFound, row, len(d.Rows))
	}
	if col < 0 || col >= len(d.Rows[row]) {
		return "", fmt.Errorf("%w: index %d of %d", ErrColumnNotFound, col, len(d.Rows[row]))
	}
	return d.Rows[row][col], nil
}

// Records maps every row by header
func (d *TableData) Records() []map[string]string {
	out := make([]map[string]string, 0, len(d.Rows))
	for _, row := range d.Rows {
		rec := make(map[string]string, len(d.Headers))
		for i, h := range d.Headers {
			if i < len(row) {
				rec[h] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out
}

// FindRow returns the index of the first row whose header column equals text
func (d *TableData) FindRow(header, text string) (int, error) {
	col, err := d.ColumnIndex(header)
	if err != nil {
		return -1, err
	}
	for i, row := range d.Rows {
		if col < len(row) && row[col] == text {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q in column %q", ErrRowNotFound, text, header)
}

func (t *Table) Headers(ctx context.Context) ([]string, error) {
	d, err := t.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return d.Headers, nil
}

func (t *Table) RowCount(ctx context.Context) (int, error) {
	d, err := t.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return len(d.Rows), nil
}

func (t *Table) ColumnCount(ctx context.Context) (int, error) {
	d, err := t.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return d.ColumnCount(), nil
}

func (t *Table) Cell(ctx context.Context, row, col int) (string, error) {
	d, err := t.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	return d.Cell(row, col)
}

func (t *Table) CellByHeader(ctx context.Context, row int, header string) (string, error) {
	d, err := t.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	col, err := d.ColumnIndex(header)
	if err != nil {
		return "", err
	}
	return d.Cell(row, col)
}

func (t *Table) Data(ctx context.Context) ([]map[string]string, error) {
	d, err := t.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return d.Records(), nil
}

func (t *Table) RowByColumnText(ctx context.Context, header, text string) (int, error) {
	d, err := t.Snapshot(ctx)
	if err != nil {
		return -1, err
	}
	return d.FindRow(header, text)
}

// CellHandle returns a live handle on the body cell at row, col so it can be clicked
func (t *Table) CellHandle(ctx context.Context, row, col int) (*Handle, error) {
	d, err := t.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := d.Cell(row, col); err != nil {
		return nil, err
	}
	// nth-child is 1-based and counts a header row that lives in tbody
	nth := row + 1
	if d.headerInBody {
		nth++
	}
	loc := models.ByCSS(fmt.Sprintf("tbody > tr:nth-child(%d) > :nth-child(%d)", nth, col+1))
	return t.Child(ctx, loc)
}
