package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	bannerFenceStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	bannerGrassStyle   = lipgloss.NewStyle().Foreground(colorPrimaryLight)
	bannerTitleStyle   = lipgloss.NewStyle().Foreground(colorText).Bold(true)
	bannerTaglineStyle = lipgloss.NewStyle().Foreground(colorPrimaryDark).Italic(true)
	bannerVersionStyle = lipgloss.NewStyle().Foreground(colorMuted)
)

func renderBanner() string {
	post := bannerFenceStyle.Render("┼")
	rail := bannerFenceStyle.Render("──")
	grass := bannerGrassStyle.Render("ʷ")
	title := bannerTitleStyle.Render("FARMSYNC")

	fence := "  " + post + rail + post + rail + post + rail + post + rail + post + rail + post
	lines := []string{
		fence,
		"  " + grass + "   " + title + "   " + grass,
		fence,
	}
	return strings.Join(lines, "\n")
}

func renderBannerWithTagline() string {
	tagline := bannerTaglineStyle.Render("   the herd book, in and out of signal")
	ver := bannerVersionStyle.Render("         " + version)
	return strings.Join([]string{renderBanner(), tagline, ver}, "\n")
}
