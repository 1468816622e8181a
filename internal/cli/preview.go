package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/matzehuels/marginalia/pkg/dom"
	"github.com/matzehuels/marginalia/pkg/engine"
)

// defaultCellWidth maps one terminal column to viewport pixels, so that a
// 160 column terminal lands at the breakpoint.
const defaultCellWidth = 8.0

// previewCommand creates the preview command: a terminal view of the
// placements that follows the terminal width as if it were a browser window.
func (c *CLI) previewCommand() *cobra.Command {
	var (
		flags     layoutFlags
		cellWidth float64
	)

	cmd := &cobra.Command{
		Use:   "preview [file.html]",
		Short: "Watch placements change as the terminal is resized",
		Long: `Open an interactive view of a document's annotation placements.

The viewport width follows the terminal: every column counts as --cell-width
pixels. Use ←/→ to nudge the width, r to reload the file and q to quit.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPreview(cmd.Context(), args[0], flags, cellWidth)
		},
	}

	flags.register(cmd)
	cmd.Flags().Float64Var(&cellWidth, "cell-width", defaultCellWidth, "pixels per terminal column")

	return cmd
}

func (c *CLI) runPreview(ctx context.Context, source string, flags layoutFlags, cellWidth float64) error {
	live, err := c.newLiveDoc(ctx, source, flags)
	if err != nil {
		return err
	}
	defer live.engine.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := newPreviewModel(ctx, live, source, cellWidth)
	p := tea.NewProgram(model, tea.WithContext(ctx), tea.WithAltScreen())
	live.engine.OnPass(func(res engine.Result, _ *dom.Document) {
		p.Send(passMsg(res))
	})

	errc := live.engine.Start(ctx)
	go func() {
		if err := live.loadImages(ctx); err != nil {
			p.Send(errMsg{err})
		}
	}()

	_, err = p.Run()
	cancel()
	if engErr := <-errc; engErr != nil && !errors.Is(engErr, context.Canceled) {
		c.Logger.Debug("engine stopped", "err", engErr)
	}
	if errors.Is(err, tea.ErrProgramKilled) {
		return ctx.Err()
	}
	return err
}

// =============================================================================
// Model
// =============================================================================

type (
	passMsg engine.Result
	errMsg  struct{ err error }
)

// previewModel is the bubbletea model behind the preview command.
type previewModel struct {
	ctx       context.Context
	live      *liveDoc
	title     string
	cellWidth float64
	nudge     float64

	width  float64
	rows   int
	scroll int
	res    engine.Result
	have   bool
	err    error
}

func newPreviewModel(ctx context.Context, live *liveDoc, title string, cellWidth float64) previewModel {
	if cellWidth <= 0 {
		cellWidth = defaultCellWidth
	}
	return previewModel{
		ctx:       ctx,
		live:      live,
		title:     title,
		cellWidth: cellWidth,
		width:     live.opts.Width,
		rows:      20,
	}
}

func (m previewModel) Init() tea.Cmd {
	return nil
}

func (m previewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "left", "h":
			m.nudge -= 40
			m.resize(m.width - 40)
		case "right", "l":
			m.nudge += 40
			m.resize(m.width + 40)
		case "up", "k":
			if m.scroll > 0 {
				m.scroll--
			}
		case "down", "j":
			if m.scroll < len(m.res.Notes)-1 {
				m.scroll++
			}
		case "r":
			return m, m.reload()
		}
	case tea.WindowSizeMsg:
		m.rows = max(msg.Height-6, 1)
		m.resize(float64(msg.Width)*m.cellWidth + m.nudge)
	case passMsg:
		m.res = engine.Result(msg)
		m.have = true
		m.err = nil
		if m.scroll >= len(m.res.Notes) {
			m.scroll = 0
		}
	case errMsg:
		m.err = msg.err
	}
	return m, nil
}

func (m *previewModel) resize(width float64) {
	if width < 0 {
		width = 0
	}
	m.width = width
	m.live.engine.Resize(width)
}

func (m previewModel) reload() tea.Cmd {
	return func() tea.Msg {
		if err := m.live.reload(m.ctx); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func (m previewModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render(m.title))
	b.WriteString(StyleDim.Render(fmt.Sprintf("  %.0fpx", m.width)))
	b.WriteString("\n")
	b.WriteString(StyleDim.Render("←/→ width  ↑/↓ scroll  r reload  q quit"))
	b.WriteString("\n\n")

	switch {
	case m.err != nil:
		b.WriteString(lipgloss.NewStyle().Foreground(colorRed).Render(m.err.Error()))
	case !m.have:
		b.WriteString(StyleDim.Render("laying out..."))
	case m.res.Skipped:
		b.WriteString(StyleWarning.Render("no content region"))
	default:
		b.WriteString(StyleValue.Render(passSummary(m.res)))
		b.WriteString("\n")
		visible := m.res
		end := min(m.scroll+m.rows, len(m.res.Notes))
		visible.Notes = m.res.Notes[m.scroll:end]
		b.WriteString(annotationTable(visible))
		if len(m.res.Notes) > m.rows {
			b.WriteString("\n")
			b.WriteString(StyleDim.Render(fmt.Sprintf("  [%d-%d/%d]", m.scroll+1, end, len(m.res.Notes))))
		}
	}
	return b.String()
}
