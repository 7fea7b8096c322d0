package main

import "github.com/charmbracelet/lipgloss"

var (
	bannerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("51")).Bold(true)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("51"))
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	infoStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	commandStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

const banner = `
  __  __ ____   ____ ____
 |  \/  / ___| / ___|  _ \
 | |\/| \___ \| |   | |_) |
 | |  | |___) | |___|  __/
 |_|  |_|____/ \____|_|
  Multi-System Compositional Pipeline
`
