package main

import (
	"os"
	"strings"
)

// init runs before lipgloss and bubbletea look at the terminal.
//
// Background color detection writes OSC/DSR queries to stdout, which breaks
// consumers parsing --json output. Setting CI makes termenv skip the probe.
func init() {
	if os.Getenv("CI") != "" {
		return
	}
	if !suppressTTYQueries(os.Args, os.Getenv("BW_TEST_MODE") != "") {
		return
	}
	_ = os.Setenv("CI", "1")
}

func suppressTTYQueries(args []string, envTest bool) bool {
	if envTest {
		return true
	}
	for _, arg := range args {
		if arg == "--json" || strings.HasPrefix(arg, "--json=") {
			return true
		}
		switch arg {
		case "--version", "--help", "-h":
			return true
		}
	}
	return false
}
