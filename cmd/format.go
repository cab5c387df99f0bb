package cmd

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"dataflag/internal/domain/dataflag"
	"dataflag/internal/ports"
)

// parseTimeArg accepts a Unix time in seconds (integer or float) or an
// RFC3339 / date-only timestamp.
func parseTimeArg(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty time value")
	}

	if unix, err := strconv.ParseFloat(raw, 64); err == nil {
		return unix, nil
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return float64(t.UnixNano()) / 1e9, nil
		}
	}
	return 0, fmt.Errorf("could not parse time %q (use RFC3339 or Unix seconds)", raw)
}

// formatTime renders a Unix time; unix=true keeps raw seconds.
func formatTime(unixTime float64, unix bool) string {
	if unix {
		return strconv.FormatFloat(unixTime, 'f', -1, 64)
	}
	sec := int64(unixTime)
	nsec := int64((unixTime - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC().Format(time.RFC3339)
}

var indentRe = regexp.MustCompile(`(?m)^`)

// formatMetadata renders the metadata blob as indented yaml.
func formatMetadata(metadata dataflag.Metadata) string {
	if len(metadata) == 0 {
		return ""
	}
	out, err := yaml.Marshal(map[string]any(metadata))
	if err != nil {
		return fmt.Sprintf("    <unrenderable: %v>", err)
	}
	return "\n" + indentRe.ReplaceAllString(strings.TrimRight(string(out), "\n"), "    ")
}

func formatCatalogType(entry ports.CatalogType) string {
	description := ""
	if entry.Description != nil {
		description = *entry.Description
	}
	return fmt.Sprintf("type: %s\ndescription: %s\nmetadata: %s",
		entry.Name, description, formatMetadata(entry.Metadata))
}

func formatFlag(flag ports.Flag, unix bool) string {
	finish := "open"
	if flag.FinishTime != nil {
		finish = formatTime(*flag.FinishTime, unix)
	}
	return fmt.Sprintf("id: %d\ntype: %s\nstart: %s\nfinish: %s\nmetadata: %s",
		flag.ID, flag.TypeName, formatTime(flag.StartTime, unix), finish, formatMetadata(flag.Metadata))
}

func formatOpinion(opinion ports.Opinion, unix bool) string {
	notes := ""
	if opinion.Notes != nil {
		notes = *opinion.Notes
	}
	return fmt.Sprintf(
		"id: %d\ntype: %s\nuser: %s\ndecision: %s\nlsd: %d\nrevision: %s\ncreated: %s\nlast edit: %s\nnotes: %s\nmetadata: %s",
		opinion.ID, opinion.TypeName, opinion.UserName, opinion.Decision, opinion.LSD,
		opinion.RevisionName, formatTime(opinion.CreationTime, unix), formatTime(opinion.LastEdit, unix),
		notes, formatMetadata(opinion.Metadata))
}
