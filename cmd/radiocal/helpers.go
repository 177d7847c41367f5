package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
)

func parseIntArg(args []string, valueName string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("invalid number of arguments")
	}

	value, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", valueName, err)
	}

	return value, nil
}

// parseChannels parses "8,9,12-15" into channel indices.
func parseChannels(s string) ([]int, error) {
	var chs []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("invalid channel %q: %v", part, err)
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(hi); err != nil {
				return nil, fmt.Errorf("invalid channel range %q: %v", part, err)
			}
		}
		if first < 0 || last > 34 || first > last {
			return nil, fmt.Errorf("channel %q out of range [0, 34]", part)
		}
		for ch := first; ch <= last; ch++ {
			chs = append(chs, ch)
		}
	}
	return chs, nil
}

// parseInts parses a comma separated list of integers.
func parseInts(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %v", part, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

func good(format string, a ...interface{}) string {
	return color.New(color.FgGreen, color.Bold).Sprintf(format, a...)
}

func bad(format string, a ...interface{}) string {
	return color.New(color.FgRed, color.Bold).Sprintf(format, a...)
}
