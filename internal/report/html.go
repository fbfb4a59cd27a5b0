// Package report renders validation reports for human consumption. Pure
// formatting; no independent logic.
package report

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"gdcore/internal/validation"
)

var severityColors = map[validation.Severity]string{
	validation.SeverityError:   "#fdd",
	validation.SeverityWarning: "#ffe9c6",
	validation.SeverityInfo:    "#e8f0fe",
}

// HTML renders the report as a standalone document, one table per rule
// type with severity-colored rows.
func HTML(r *validation.Report) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	b.WriteString("<title>Validation Report</title>\n<style>\n")
	b.WriteString("body{font-family:sans-serif;margin:2em}table{border-collapse:collapse;width:100%;margin-bottom:2em}")
	b.WriteString("td,th{border:1px solid #ccc;padding:4px 8px;text-align:left}th{background:#eee}\n")
	b.WriteString("</style>\n</head>\n<body>\n")

	fmt.Fprintf(&b, "<h1>Validation Report</h1>\n")
	fmt.Fprintf(&b, "<p>%s &mdash; %d documents, %s elapsed</p>\n",
		r.Timestamp.Format("2006-01-02 15:04:05"), r.Documents, r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&b, "<p><strong>%d errors</strong>, %d warnings, %d infos</p>\n",
		r.Errors, r.Warnings, r.Infos)

	if len(r.RulesSkipped) > 0 {
		fmt.Fprintf(&b, "<p>Rules skipped: %s</p>\n",
			html.EscapeString(strings.Join(r.RulesSkipped, ", ")))
	}

	types := make([]string, 0, len(r.ByType))
	for typ := range r.ByType {
		types = append(types, typ)
	}
	sort.Strings(types)

	for _, typ := range types {
		results := r.ByType[typ]
		fmt.Fprintf(&b, "<h2>%s (%d)</h2>\n<table>\n", html.EscapeString(typ), len(results))
		b.WriteString("<tr><th>Severity</th><th>File</th><th>Element</th><th>Message</th><th>Suggestions</th></tr>\n")
		for _, res := range results {
			fmt.Fprintf(&b, "<tr style=\"background:%s\"><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>\n",
				severityColors[res.Severity],
				html.EscapeString(string(res.Severity)),
				html.EscapeString(res.File),
				html.EscapeString(res.ElementPath),
				html.EscapeString(res.Message),
				html.EscapeString(strings.Join(res.Suggestions, "; ")))
		}
		b.WriteString("</table>\n")
	}

	b.WriteString("</body>\n</html>\n")
	return b.String()
}

// Text renders a compact terminal summary.
func Text(r *validation.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d documents validated in %s: %d errors, %d warnings, %d infos\n",
		r.Documents, r.Elapsed.Round(time.Millisecond), r.Errors, r.Warnings, r.Infos)
	if len(r.RulesSkipped) > 0 {
		fmt.Fprintf(&b, "rules skipped: %s\n", strings.Join(r.RulesSkipped, ", "))
	}

	types := make([]string, 0, len(r.ByType))
	for typ := range r.ByType {
		types = append(types, typ)
	}
	sort.Strings(types)

	for _, typ := range types {
		fmt.Fprintf(&b, "\n%s:\n", typ)
		for _, res := range r.ByType[typ] {
			fmt.Fprintf(&b, "  [%s] %s (%s %s)\n", res.Severity, res.Message, res.File, res.ElementPath)
		}
	}
	return b.String()
}
