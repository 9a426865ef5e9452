package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dyike/tsladash/config"
	"github.com/dyike/tsladash/models"
)

// UI styles
var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7C3AED")).
		Background(lipgloss.Color("#1F2937")).
		Padding(0, 1).
		MarginBottom(1)

	summaryStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#3B82F6")).
		Padding(1, 2).
		Width(80)

	answerStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#10B981")).
		Padding(1, 2).
		Width(80)

	historyStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#F59E0B")).
		Padding(0, 1).
		Width(80)

	longStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	shortStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	neutralStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	errorStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#EF4444")).
		Bold(true)
)

// DisplayTitle shows the dashboard title
func DisplayTitle(w io.Writer, symbol string) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("📈 %s Trading Dashboard", symbol)))
}

// DisplaySummary shows the stats line and signal counts
func DisplaySummary(w io.Writer, s models.Summary) {
	var content strings.Builder
	content.WriteString(s.Stats())
	content.WriteString("\n\n")
	fmt.Fprintf(&content, "Close: $%.2f\n", s.LastClose)
	fmt.Fprintf(&content, "%s  %s  %s\n",
		longStyle.Render(fmt.Sprintf("LONG %d", s.Long)),
		shortStyle.Render(fmt.Sprintf("SHORT %d", s.Short)),
		neutralStyle.Render(fmt.Sprintf("NEUTRAL %d", s.Neutral)),
	)
	if s.Records > 0 {
		fmt.Fprintf(&content, "\nHigh: $%.2f on %s\nLow:  $%.2f on %s",
			s.High, s.HighDate.Format("2006-01-02"), s.Low, s.LowDate.Format("2006-01-02"))
	}
	if s.MostVolatileMonth != "" {
		fmt.Fprintf(&content, "\nMost volatile month: %s (%.1f%% of avg close)", s.MostVolatileMonth, s.MonthRangePct)
	}
	fmt.Fprintln(w, summaryStyle.Render(content.String()))
}

// DisplayAnswer shows the assistant's reply
func DisplayAnswer(w io.Writer, question, answer string) {
	content := mutedStyle.Render("Q: "+question) + "\n\n" + answer
	fmt.Fprintln(w, answerStyle.Render(content))
}

// DisplayHistory lists recorded exchanges, newest first
func DisplayHistory(w io.Writer, items []models.HistoryItem) {
	if len(items) == 0 {
		DisplayInfo(w, "No questions recorded yet.")
		return
	}
	for _, item := range items {
		var content strings.Builder
		fmt.Fprintf(&content, "%s  %s  %s\n",
			mutedStyle.Render(item.Session.CreatedAt.Local().Format("2006-01-02 15:04")),
			item.Session.Symbol, statusLabel(item.Session.Status))
		for _, msg := range item.Messages {
			fmt.Fprintf(&content, "%s: %s\n", msg.Role, truncateString(msg.Content, 300))
		}
		fmt.Fprintln(w, historyStyle.Render(strings.TrimRight(content.String(), "\n")))
	}
}

// DisplayConfig prints cfg with secrets masked
func DisplayConfig(w io.Writer, cfg *config.Config, path string) {
	m := cfg.Masked()
	fmt.Fprintln(w, titleStyle.Render("📋 Current tsladash Configuration"))
	if path != "" {
		fmt.Fprintf(w, "Config File:          %s\n", path)
	}
	fmt.Fprintf(w, "Project Directory:    %s\n", m.ProjectDir)
	fmt.Fprintf(w, "Data File:            %s\n", m.DataFile)
	fmt.Fprintf(w, "Cache Directory:      %s\n", m.DataCacheDir)
	fmt.Fprintf(w, "History Database:     %s\n", m.DBPath)
	fmt.Fprintf(w, "Secrets File:         %s\n", m.SecretsFile)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Ticker:               %s\n", m.Ticker)
	fmt.Fprintf(w, "Data Source:          %s\n", m.DataSource)
	fmt.Fprintf(w, "Lookback Days:        %d\n", m.LookbackDays)
	fmt.Fprintf(w, "Chart Rows:           %d\n", m.MaxChartRows)
	fmt.Fprintf(w, "Band:                 %s (window %d, k %.2f)\n", m.BandMethod, m.BandWindow, m.BandK)
	fmt.Fprintf(w, "Signal Threshold:     %.4f\n", m.SignalThreshold)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "LLM Provider:         %s\n", m.LLMProvider)
	if m.LLMProvider == config.ProviderOpenAI {
		fmt.Fprintf(w, "Model:                %s @ %s\n", m.OpenAIModel, m.OpenAIBaseURL)
	} else {
		fmt.Fprintf(w, "Model:                %s @ %s\n", m.GeminiModel, m.GeminiBaseURL)
	}
	fmt.Fprintf(w, "LLM Timeout:          %s\n", m.LLMTimeout)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Listen Address:       %s\n", m.ListenAddr)
	fmt.Fprintf(w, "Log Level:            %s (%s)\n", m.LogLevel, m.LogFormat)
	fmt.Fprintf(w, "Cache Enabled:        %t\n", m.CacheEnabled)
	fmt.Fprintf(w, "Debug Mode:           %t\n", m.Debug)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "🔌 API Configuration:")
	fmt.Fprintln(w, "─────────────────────")
	fmt.Fprintf(w, "Gemini API Key:       %s\n", keyStatus(m.GeminiAPIKey))
	fmt.Fprintf(w, "Longport Token:       %s\n", keyStatus(m.LongportAccessToken))
}

func keyStatus(masked string) string {
	if masked == "" {
		return "❌ Not configured"
	}
	return "✅ " + masked
}

// DisplayError shows an error message
func DisplayError(w io.Writer, err error) {
	fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("❌ Error: %s", err.Error())))
}

// DisplayWarning shows text the user must act on, verbatim
func DisplayWarning(w io.Writer, message string) {
	fmt.Fprintln(w, errorStyle.Render(message))
}

// DisplayInfo shows an info message
func DisplayInfo(w io.Writer, message string) {
	infoMsg := fmt.Sprintf("ℹ️  %s", message)
	fmt.Fprintln(w, lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6")).Render(infoMsg))
}

// DisplaySuccess shows a success message
func DisplaySuccess(w io.Writer, message string) {
	successMsg := fmt.Sprintf("✅ %s", message)
	fmt.Fprintln(w, lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Render(successMsg))
}

func statusLabel(status string) string {
	switch status {
	case "done":
		return longStyle.Render(status)
	case "error":
		return shortStyle.Render(status)
	default:
		return neutralStyle.Render(status)
	}
}

func truncateString(s string, maxLen int) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
