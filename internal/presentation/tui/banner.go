package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []string{
	"            _                       _     ",
	"  ___  __ _| | __ _ _ __ __ _ _ __ | |__  ",
	" / __|/ _` | |/ _` | '__/ _` | '_ \\| '_ \\ ",
	" \\__ \\ (_| | | (_| | | | (_| | |_) | | | |",
	" |___/\\__, |_|\\__, |_|  \\__,_| .__/|_| |_|",
	"         |_|  |___/          |_|          ",
}

var bannerColors = []string{"#38bdf8", "#22d3ee", "#2dd4bf", "#34d399", "#4ade80", "#a3e635"}

// PrintBanner writes the sqlgraph banner to w, colored when w is a terminal.
func PrintBanner(w io.Writer) {
	out := termenv.NewOutput(w)
	fmt.Fprintln(w)
	for i, line := range bannerLines {
		fmt.Fprintln(w, out.String(line).Foreground(out.Color(bannerColors[i])))
	}
	fmt.Fprintln(w)
}

// Status styles a progress line.
func Status(w io.Writer, msg string) string {
	out := termenv.NewOutput(w)
	return out.String("· " + msg).Faint().String()
}
