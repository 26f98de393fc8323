package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/repopulse/repopulse/pkg/queue"
	"github.com/repopulse/repopulse/pkg/snapshot"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// queueModel is the bubbletea model for interactive queue browsing. It
// shows the pending update queue as a scrollable table; enter opens a
// detail pane for the selected entry.
type queueModel struct {
	gen     *snapshot.Generation
	updates []queue.Update

	// inCycle marks sources that are members of a dependency cycle.
	inCycle map[string]bool

	cursor int
	offset int
	height int
	detail bool
}

func newQueueModel(gen *snapshot.Generation) queueModel {
	inCycle := map[string]bool{}
	for _, cycle := range gen.Cycles {
		for _, name := range cycle {
			inCycle[name] = true
		}
	}
	return queueModel{
		gen:     gen,
		updates: gen.Updates,
		inCycle: inCycle,
		height:  15,
	}
}

func (m queueModel) Init() tea.Cmd {
	return nil
}

func (m queueModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "esc":
			if m.detail {
				m.detail = false
				return m, nil
			}
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
				if m.cursor < m.offset {
					m.offset = m.cursor
				}
			}
		case "down", "j":
			if m.cursor < len(m.updates)-1 {
				m.cursor++
				if m.cursor >= m.offset+m.height {
					m.offset = m.cursor - m.height + 1
				}
			}
		case "enter":
			if len(m.updates) > 0 {
				m.detail = !m.detail
			}
		}
	case tea.WindowSizeMsg:
		m.height = msg.Height - 8
		if m.height < 5 {
			m.height = 5
		}
	}
	return m, nil
}

func (m queueModel) View() string {
	if m.detail {
		return m.detailView()
	}
	return m.listView()
}

func (m queueModel) listView() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Pending Updates"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ details  q quit"))
	b.WriteString("\n\n")

	if len(m.updates) == 0 {
		b.WriteString(listDimStyle.Render("  nothing pending"))
		return b.String()
	}

	end := m.offset + m.height
	if end > len(m.updates) {
		end = len(m.updates)
	}

	rows := [][]string{}
	for i := m.offset; i < end; i++ {
		up := m.updates[i]

		cursor := "  "
		if i == m.cursor {
			cursor = "▸ "
		}
		built := up.BuiltVersion
		if up.New() {
			built = "new"
		}
		cycle := ""
		if m.inCycle[up.Source.Name] {
			cycle = "cycle"
		}
		rows = append(rows, []string{cursor, up.Source.Name, built, up.RecipeVersion, formatStatuses(up.Statuses), cycle})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Package", "Built", "Recipe", "Status", "").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			actual := m.offset + row
			if actual >= len(m.updates) {
				return lipgloss.NewStyle()
			}
			if m.inCycle[m.updates[actual].Source.Name] && col == 5 {
				return lipgloss.NewStyle().Foreground(colorRed)
			}
			if actual == m.cursor {
				return listSelectedStyle
			}
			return lipgloss.NewStyle().Foreground(colorGray)
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.cursor+1, len(m.updates))))

	return b.String()
}

func (m queueModel) detailView() string {
	up := m.updates[m.cursor]
	src := up.Source

	var b strings.Builder
	b.WriteString(StyleTitle.Render(src.Name))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("esc back  q quit"))
	b.WriteString("\n\n")

	line := func(key, value string) {
		if value == "" {
			value = "—"
		}
		b.WriteString(fmt.Sprintf("  %s %s\n",
			lipgloss.NewStyle().Foreground(colorGray).Width(14).Render(key),
			StyleValue.Render(value)))
	}

	built := up.BuiltVersion
	if up.New() {
		built = "never built"
	}
	line("Built", built)
	line("Recipe", up.RecipeVersion)
	line("Binaries", strings.Join(src.Binaries(), ", "))
	line("Repos", strings.Join(src.Repos(), ", "))
	line("URL", src.URL)

	if m.inCycle[src.Name] {
		b.WriteString("\n  ")
		b.WriteString(lipgloss.NewStyle().Foreground(colorRed).Render("part of a dependency cycle"))
		b.WriteString("\n")
	}

	if len(up.Statuses) > 0 {
		b.WriteString("\n")
		b.WriteString("  " + lipgloss.NewStyle().Foreground(colorGray).Bold(true).Render("Build status") + "\n")
		for _, st := range up.Statuses {
			desc := st.Status
			if st.Desc != "" {
				desc += " " + listDimStyle.Render("("+st.Desc+")")
			}
			b.WriteString(fmt.Sprintf("  %s %s\n",
				lipgloss.NewStyle().Foreground(colorGray).Width(14).Render(st.BuildType),
				desc))
		}
	}

	if sr, ok := m.gen.Vulnerabilities.All[src.Name]; ok {
		b.WriteString("\n")
		b.WriteString("  " + lipgloss.NewStyle().Foreground(colorGray).Bold(true).Render("Vulnerabilities") + "\n")
		for _, rec := range sr.Records {
			sev := rec.Severity.String()
			if rec.Ignored {
				sev += " " + listDimStyle.Render("(ignored)")
			}
			b.WriteString(fmt.Sprintf("  %s %s\n",
				lipgloss.NewStyle().Foreground(colorGray).Width(14).Render(sev),
				StyleValue.Render(rec.ID)))
		}
	}

	return b.String()
}
