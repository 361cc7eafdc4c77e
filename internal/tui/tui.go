// Package tui is the interactive review console: a run list with quality
// badges on the left, run detail on the right, approve/reject from the
// keyboard.
package tui

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"promptsupport/internal/core"
	"promptsupport/internal/review"
	"promptsupport/internal/store"
)

type model struct {
	store   *store.Store
	reviews *review.Service

	runs        []*core.RunRecord
	selectedIdx int
	width       int
	height      int
	status      string
	quitting    bool
}

func initialModel(st *store.Store, reviews *review.Service) model {
	m := model{store: st, reviews: reviews}
	m.reload()
	return m
}

func (m *model) reload() {
	runs, err := m.store.ListRuns(50)
	if err != nil {
		m.status = "failed to load runs: " + err.Error()
		return
	}
	m.runs = runs
	if m.selectedIdx >= len(m.runs) {
		m.selectedIdx = len(m.runs) - 1
	}
	if m.selectedIdx < 0 {
		m.selectedIdx = 0
	}
}

func (m model) selected() *core.RunRecord {
	if len(m.runs) == 0 || m.selectedIdx >= len(m.runs) {
		return nil
	}
	return m.runs[m.selectedIdx]
}

func (m model) badgeFor(run *core.RunRecord) review.Badge {
	validation, err := m.store.GetValidation(run.RunID, run.Revision)
	if err != nil || validation == nil {
		return review.BadgeWarning
	}
	bundle := core.MetricsBundle{Validation: *validation}
	if qaRes, err := m.store.GetQAResult(run.RunID, run.Revision); err == nil && qaRes != nil {
		bundle.QA = *qaRes
	}
	if adjustment, err := m.store.GetAdjustment(run.RunID, run.Revision); err == nil && adjustment != nil {
		bundle.Adjustment = *adjustment
	}
	return review.ScoreBadge(bundle)
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case "up", "k":
			if m.selectedIdx > 0 {
				m.selectedIdx--
			}
		case "down", "j":
			if m.selectedIdx < len(m.runs)-1 {
				m.selectedIdx++
			}
		case "a":
			if run := m.selected(); run != nil {
				if err := m.reviews.Approve(run.RunID); err != nil {
					m.status = "approve failed: " + err.Error()
				} else {
					m.status = "approved and published " + run.RunID
				}
				m.reload()
			}
		case "r":
			if run := m.selected(); run != nil {
				if err := m.reviews.Reject(run.RunID, "rejected from review console"); err != nil {
					m.status = "reject failed: " + err.Error()
				} else {
					m.status = "rejected " + run.RunID
				}
				m.reload()
			}
		case "g":
			m.reload()
			m.status = "refreshed"
		}
	}

	return m, nil
}

var badgeStyles = map[review.Badge]lipgloss.Style{
	review.BadgeExcellent: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	review.BadgeGood:      lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	review.BadgeWarning:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
}

func (m model) View() string {
	if m.quitting {
		return "Quitting...\n"
	}

	docStyle := lipgloss.NewStyle().Margin(1, 2)
	listStyle := lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true).Padding(1).Width(m.width/2 - 5)
	detailStyle := lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true).Padding(1).Width(m.width/2 - 5)

	listContent := "Runs\n\n"
	if len(m.runs) == 0 {
		listContent += "No runs yet."
	} else {
		for i, run := range m.runs {
			cursor := " "
			if i == m.selectedIdx {
				cursor = ">"
			}
			badge := m.badgeFor(run)
			label := badgeStyles[badge].Render(string(badge))
			listContent += fmt.Sprintf("%s %s  %s  [%s] %s\n", cursor, run.DocID, run.RunID[:8], label, run.ReviewStatus)
		}
	}

	detailContent := "Run Detail\n\n"
	if run := m.selected(); run != nil {
		detailContent += fmt.Sprintf("Run:      %s\n", run.RunID)
		detailContent += fmt.Sprintf("Document: %s (v%d)\n", run.DocID, run.Version)
		detailContent += fmt.Sprintf("Revision: %d\n", run.Revision)
		detailContent += fmt.Sprintf("Status:   %s\n", run.Status)
		detailContent += fmt.Sprintf("Review:   %s\n", run.ReviewStatus)
		if run.RejectReason != "" {
			detailContent += fmt.Sprintf("Reason:   %s\n", run.RejectReason)
		}
		if validation, err := m.store.GetValidation(run.RunID, run.Revision); err == nil && validation != nil {
			detailContent += fmt.Sprintf("\nFidelity: %.2f\nCoverage: %.0f%%\nStyle:    %.0f%%\nPassed:   %v\n",
				validation.FidelityScore, validation.CoveragePercent, validation.StyleCompliancePercent, validation.Passed)
		}
		if articles, err := m.store.GetArticles(run.RunID, run.Revision); err == nil {
			detailContent += fmt.Sprintf("\nArticles: %d\n", len(articles))
			for _, a := range articles {
				detailContent += fmt.Sprintf("  %s  %s (%d words)\n", a.ID, a.Title, a.WordCount())
			}
		}
	} else {
		detailContent += "Nothing selected."
	}

	leftPane := listStyle.Render(listContent)
	rightPane := detailStyle.Render(detailContent)
	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, rightPane)

	help := "\n\n[↑/k] Up | [↓/j] Down | [a] Approve | [r] Reject | [g] Refresh | [q] Quit"
	if m.status != "" {
		help += "\n" + m.status
	}

	return docStyle.Render(mainContent + help)
}

// Start initializes and runs the review console.
func Start(st *store.Store, reviews *review.Service) {
	p := tea.NewProgram(initialModel(st, reviews), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running review console: %v\n", err)
		os.Exit(1)
	}
}
