package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{"         _   _           _   ", "#34d399"},
	{"    __ _| |_| |_ ___ ___| |_ ", "#2dd4bf"},
	{"   / _` |  _|  _/ -_|_-<  _|", "#22d3ee"},
	{"   \\__,_|\\__|\\__\\___/__/\\__|", "#38bdf8"},
}

// PrintBanner writes the attest banner followed by a version line.
// Colors degrade to plain text when w does not support them.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("   credential verification decisions, "+version).Faint())
	fmt.Fprintln(w)
}
