package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"news_digest/internal/pipeline"
	"news_digest/internal/preference"
)

// ParseIDArg extracts a numeric ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("item ID is required")
	}
	id, err := strconv.ParseInt(strings.Fields(s)[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid item ID %q", s)
	}
	return id, nil
}

// ParseListArg splits a keyword or category list. "-" or "none" clears the
// list and yields nil.
func ParseListArg(args string) ([]string, error) {
	s := strings.TrimSpace(args)
	switch strings.ToLower(s) {
	case "":
		return nil, fmt.Errorf("list is required, use - to clear")
	case "-", none:
		return nil, nil
	}
	return preference.NormalizeKeywords(s), nil
}

// ParseLimitArg parses the daily limit argument.
func ParseLimitArg(args string) (int, error) {
	s := strings.TrimSpace(args)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid limit %q", s)
	}
	return n, nil
}

// ParseCountArg parses an optional positive count; empty yields zero.
func ParseCountArg(args string) (int, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid count %q", s)
	}
	return n, nil
}

// ParseDateArg returns the YYYY-MM-DD date in args, or today when empty.
func ParseDateArg(args, today string) (string, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return today, nil
	}
	if _, err := time.Parse(pipeline.DateLayout, s); err != nil {
		return "", fmt.Errorf("invalid date %q, use YYYY-MM-DD", s)
	}
	return s, nil
}

// ParseOptionalArg returns the single word in args, or "" for "-"/"none".
func ParseOptionalArg(args string) (string, error) {
	fields := strings.Fields(args)
	if len(fields) != 1 {
		return "", fmt.Errorf("exactly one value is required, use - to clear")
	}
	if v := strings.ToLower(fields[0]); v == "-" || v == none {
		return "", nil
	}
	return fields[0], nil
}

// ParseSwitchArg parses on/off style arguments.
func ParseSwitchArg(args string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(args)) {
	case "on", "yes", "true", "1":
		return true, nil
	case "off", "no", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("use on or off")
}
