package ui

import (
	"fmt"
	"strconv"

	"github.com/SpandanM110/Chatroom/internal/signaling"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Stats output formats.
const (
	FormatTable    = "table"
	FormatPlain    = "plain"
	FormatMarkdown = "markdown"
	FormatCSV      = "csv"
)

func statsRows(s signaling.Stats) [][]string {
	return [][]string{
		{"Connections", strconv.Itoa(s.Clients)},
		{"Registered", strconv.Itoa(s.Registered)},
		{"Waiting", strconv.Itoa(s.Waiting)},
		{"Active chats", strconv.Itoa(s.Sessions)},
		{"Matches made", strconv.FormatUint(s.MatchesTotal, 10)},
		{"Dropped messages", strconv.FormatInt(s.Dropped, 10)},
	}
}

// StatsView renders server load as a styled terminal table.
func StatsView(server string, s signaling.Stats) string {
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Metric", "Value").
		Rows(statsRows(s)...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	title := TitleStyle.Render(fmt.Sprintf("%s %s", IconStats, server))
	return lipgloss.JoinVertical(lipgloss.Left, title, tbl.Render())
}

// StatsText renders server load without terminal styling, for pipes and
// documents.
func StatsText(s signaling.Stats, format string) (string, error) {
	t := prettytable.NewWriter()
	t.AppendHeader(prettytable.Row{"Metric", "Value"})
	for _, r := range statsRows(s) {
		t.AppendRow(prettytable.Row{r[0], r[1]})
	}
	t.SetColumnConfigs([]prettytable.ColumnConfig{{Number: 2, Align: text.AlignRight}})

	switch format {
	case FormatPlain:
		t.SetStyle(prettytable.StyleLight)
		return t.Render(), nil
	case FormatMarkdown:
		return t.RenderMarkdown(), nil
	case FormatCSV:
		return t.RenderCSV(), nil
	default:
		return "", fmt.Errorf("unknown stats format %q", format)
	}
}
