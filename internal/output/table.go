package output

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/tanq16/tubeq/internal/queue"
)

type Table struct {
	Headers []string
	Rows    [][]string
	table   *table.Table
}

func NewTable(headers []string) *Table {
	t := &Table{
		Headers: headers,
		Rows:    [][]string{},
	}
	t.table = table.New().Headers(headers...)
	t.table = t.table.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return lipgloss.NewStyle().Bold(true).Align(lipgloss.Center).Padding(0, 1)
		}
		return lipgloss.NewStyle().Padding(0, 1)
	})
	return t
}

func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

func (t *Table) FormatTable(useMarkdown bool) string {
	tbl := t.table.Rows(t.Rows...)
	if useMarkdown {
		return tbl.Border(lipgloss.MarkdownBorder()).String()
	}
	return tbl.String()
}

func (t *Table) PrintTable(useMarkdown bool) {
	fmt.Println(t.FormatTable(useMarkdown))
}

// JobTable lists one row per job with the short id used by the job
// commands.
func JobTable(s queue.Snapshot) *Table {
	t := NewTable([]string{"ID", "Status", "Progress", "Mode", "Title", "Detail"})
	for _, j := range s.Items {
		detail := queue.Deref(j.OutputPath)
		if msg := queue.Deref(j.ErrorMessage); msg != "" {
			detail = msg
		}
		if len([]rune(detail)) > 60 {
			detail = string([]rune(detail)[:57]) + "..."
		}
		progress := fmt.Sprintf("%.1f%%", j.ProgressPercent)
		if j.RetryCount > 0 {
			progress += fmt.Sprintf(" r%d", j.RetryCount)
		}
		t.AddRow(ShortID(j.ID), string(j.Status), progress, string(j.Mode), j.Title, detail)
	}
	return t
}

func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
