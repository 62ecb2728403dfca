package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/amterp/ra"

	"github.com/amterp/kanflow/internal/service"
)

func registerDoctor(parent *ra.Cmd, ctx *CommandContext) {
	cmd := ra.NewCmd("doctor")
	cmd.SetDescription("Check item ordering and board configuration. Exit 0 if healthy, 1 if errors found.")

	ctx.DoctorFix, _ = ra.NewBool("fix").
		SetOptional(true).
		SetFlagOnly(true).
		SetUsage("Renumber groups and rehome orphaned items").
		Register(cmd)

	ctx.DoctorDryRun, _ = ra.NewBool("dry-run").
		SetOptional(true).
		SetFlagOnly(true).
		SetUsage("Show what --fix would repair without writing").
		Register(cmd)

	ctx.DoctorBoard, _ = ra.NewString("board").
		SetShort("b").
		SetOptional(true).
		SetFlagOnly(true).
		SetUsage("Check only a specific board (default: all)").
		SetCompletionFunc(completeBoards).
		Register(cmd)

	ctx.DoctorUsed, _ = parent.RegisterCmd(cmd)
}

func runDoctor(boardID string, fix, dryRun, jsonOutput bool) {
	if fix && dryRun {
		Fatal(fmt.Errorf("--fix and --dry-run cannot be used together"))
	}

	app := openProject(false)
	defer app.Close()
	ctx := context.Background()

	report, err := app.DoctorService.Diagnose(ctx, boardID)
	if err != nil {
		app.Fatal(err)
	}
	if fix && len(report.Issues) > 0 {
		report, err = app.DoctorService.Fix(ctx, report)
		if err != nil {
			app.Fatal(err)
		}
	}

	if jsonOutput {
		if err := printJson(report); err != nil {
			app.Fatal(err)
		}
	} else {
		writeDoctorReport(os.Stdout, report, doctorMode(fix, dryRun))
	}

	if report.HasErrors() {
		app.Close()
		os.Exit(1)
	}
}

type reportMode int

const (
	modeCheck reportMode = iota
	modeDryRun
	modeFixed
)

func doctorMode(fix, dryRun bool) reportMode {
	switch {
	case fix:
		return modeFixed
	case dryRun:
		return modeDryRun
	default:
		return modeCheck
	}
}

// writeDoctorReport prints project-level issues first, then each board
// with its own issues underneath.
func writeDoctorReport(w io.Writer, report *service.DiagnosticReport, mode reportMode) {
	byBoard := make(map[string][]service.Issue)
	var project []service.Issue
	fixable := 0
	for _, issue := range report.Issues {
		if issue.Fixable {
			fixable++
		}
		if issue.Board == "" {
			project = append(project, issue)
			continue
		}
		byBoard[issue.Board] = append(byBoard[issue.Board], issue)
	}

	for _, issue := range project {
		writeIssue(w, issue, "")
	}
	if len(project) > 0 {
		fmt.Fprintln(w)
	}

	if len(report.Boards) == 0 {
		fmt.Fprintf(w, "%s No boards found\n", RenderMuted(IconInfo))
		return
	}

	for _, b := range report.Boards {
		issues := byBoard[b.ID]
		status := StyleSuccess.Render(IconSuccess)
		if len(issues) > 0 {
			status = StyleWarning.Render(IconWarning)
		}
		fmt.Fprintf(w, "%s %s %s\n", status, RenderBold(b.Name),
			RenderMuted(fmt.Sprintf("(%s, %d groups, %d items)", b.ID, b.Groups, b.Items)))
		for _, issue := range issues {
			writeIssue(w, issue, "  ")
		}
	}
	fmt.Fprintln(w)

	summary := []string{}
	if n := report.Summary.Errors; n > 0 {
		summary = append(summary, StyleError.Render(fmt.Sprintf("%d error(s)", n)))
	}
	if n := report.Summary.Warnings; n > 0 {
		summary = append(summary, StyleWarning.Render(fmt.Sprintf("%d warning(s)", n)))
	}
	if mode == modeFixed && report.Summary.Fixed > 0 {
		summary = append(summary, StyleSuccess.Render(fmt.Sprintf("%d fixed", report.Summary.Fixed)))
	}
	if n := report.Summary.FixFailed; n > 0 {
		summary = append(summary, StyleError.Render(fmt.Sprintf("%d fix failed", n)))
	}
	if len(summary) == 0 {
		fmt.Fprintf(w, "%s No issues found\n", StyleSuccess.Render(IconSuccess))
		return
	}
	fmt.Fprintf(w, "Summary: %s\n", strings.Join(summary, ", "))

	switch {
	case mode == modeDryRun && fixable > 0:
		fmt.Fprintf(w, "%s %d issue(s) would be repaired by 'kanflow doctor --fix'\n", RenderMuted(IconInfo), fixable)
	case mode == modeCheck && fixable > 0:
		fmt.Fprintf(w, "%s Run 'kanflow doctor --fix' to repair %d issue(s)\n", RenderMuted(IconInfo), fixable)
	}
}

func writeIssue(w io.Writer, issue service.Issue, indent string) {
	style, icon := StyleWarning, IconWarning
	if issue.Severity == service.SeverityError {
		style, icon = StyleError, IconError
	}

	where := ""
	if issue.GroupID != "" {
		where += " " + RenderMuted(issue.GroupID)
	}
	if issue.ItemID != "" {
		where += " " + RenderID(issue.ItemID)
	}
	fmt.Fprintf(w, "%s%s %s%s %s\n", indent, style.Render(icon), style.Render(issue.Code), where, issue.Message)

	switch {
	case issue.FixError != "":
		fmt.Fprintf(w, "%s    %s fix failed: %s\n", indent, StyleError.Render(IconInfo), issue.FixError)
	case issue.FixAction != "":
		fmt.Fprintf(w, "%s    %s %s\n", indent, RenderMuted(IconInfo), issue.FixAction)
	}
}
