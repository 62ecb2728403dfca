package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/amterp/kanflow/internal/cache"
	"github.com/amterp/kanflow/internal/config"
	"github.com/amterp/kanflow/internal/id"
	"github.com/amterp/kanflow/internal/model"
	"github.com/amterp/kanflow/internal/reindex"
	"github.com/amterp/kanflow/internal/store"
	"github.com/amterp/kanflow/internal/util"
	"github.com/amterp/kanflow/internal/version"
)

// IssueSeverity indicates how critical an issue is.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// Issue codes for diagnostic results.
const (
	// Data integrity (errors)
	CodeMalformedProjectConfig = "MALFORMED_PROJECT_CONFIG"
	CodeUnreadableBoard        = "UNREADABLE_BOARD"
	CodeOrphanedItem           = "ORPHANED_ITEM"

	// Ordering (warnings)
	CodeDuplicatePosition = "DUPLICATE_POSITION"
	CodePositionGap       = "POSITION_GAP"

	// Configuration (warnings)
	CodeKindMismatch   = "KIND_MISMATCH"
	CodeSchemaOutdated = "SCHEMA_OUTDATED"
)

// Issue represents a single diagnostic finding.
type Issue struct {
	Severity  IssueSeverity `json:"severity"`
	Code      string        `json:"code"`
	Board     string        `json:"board,omitempty"`
	GroupID   string        `json:"group_id,omitempty"`
	ItemID    string        `json:"item_id,omitempty"`
	Message   string        `json:"message"`
	Fixable   bool          `json:"fixable"`
	FixAction string        `json:"fix_action,omitempty"`
	FixError  string        `json:"fix_error,omitempty"` // Populated if fix was attempted but failed
}

// BoardDiagnostic contains stats for a single board.
type BoardDiagnostic struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Groups int    `json:"groups"`
	Items  int    `json:"items"`
}

// ReportSummary summarizes the diagnostic results.
type ReportSummary struct {
	Errors    int `json:"errors"`
	Warnings  int `json:"warnings"`
	Fixed     int `json:"fixed"`
	FixFailed int `json:"fix_failed,omitempty"`
}

// DiagnosticReport contains all diagnostic results.
type DiagnosticReport struct {
	Boards  []BoardDiagnostic `json:"boards"`
	Issues  []Issue           `json:"issues"`
	Summary ReportSummary     `json:"summary"`
}

// HasErrors returns true if there are any error-level issues.
func (r *DiagnosticReport) HasErrors() bool {
	return r.Summary.Errors > 0
}

func (r *DiagnosticReport) summarize() {
	r.Summary.Errors, r.Summary.Warnings = 0, 0
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			r.Summary.Errors++
		} else {
			r.Summary.Warnings++
		}
	}
}

// DoctorService checks boards for ordering and configuration problems.
// Findings are only reported; Fix repairs what it can through the normal
// batch path.
type DoctorService struct {
	backend store.Backend
	reorder *ReorderService
	paths   *config.Paths // nil for non-file setups
}

// NewDoctorService creates a new diagnostic service.
func NewDoctorService(backend store.Backend, reorder *ReorderService, paths *config.Paths) *DoctorService {
	return &DoctorService{backend: backend, reorder: reorder, paths: paths}
}

// Diagnose analyzes all boards (or one board) for issues.
// If boardID is empty, all boards are checked.
func (s *DoctorService) Diagnose(ctx context.Context, boardID string) (*DiagnosticReport, error) {
	report := &DiagnosticReport{
		Boards: []BoardDiagnostic{},
		Issues: []Issue{},
	}

	s.checkProjectConfig(report)

	boards, err := s.backend.ListBoards(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list boards: %w", err)
	}

	for _, summary := range boards {
		if boardID != "" && summary.ID != boardID {
			continue
		}
		board, err := s.backend.LoadBoard(ctx, summary.ID)
		if err != nil {
			report.Issues = append(report.Issues, Issue{
				Severity: SeverityError,
				Code:     CodeUnreadableBoard,
				Board:    summary.ID,
				Message:  err.Error(),
			})
			continue
		}
		report.Boards = append(report.Boards, BoardDiagnostic{
			ID:     board.ID,
			Name:   board.Name,
			Groups: len(board.Groups),
			Items:  len(board.Items),
		})
		report.Issues = append(report.Issues, CheckBoard(board)...)
	}

	report.summarize()
	return report, nil
}

// CheckBoard returns the issues found on one board snapshot.
func CheckBoard(board *model.Board) []Issue {
	var issues []Issue

	for _, it := range board.Items {
		if board.Group(it.GroupID) == nil {
			issues = append(issues, Issue{
				Severity:  SeverityError,
				Code:      CodeOrphanedItem,
				Board:     board.ID,
				GroupID:   it.GroupID,
				ItemID:    it.ID,
				Message:   fmt.Sprintf("item %q is in unknown group %s", it.Title, it.GroupID),
				Fixable:   fallbackGroup(board) != nil,
				FixAction: "move it to the end of the first group that accepts new items",
			})
		}
	}

	for _, g := range board.SortedGroups() {
		if !reindex.IsContiguous(board, g.ID) {
			code, what := CodePositionGap, "has gaps in its positions"
			if hasDuplicatePositions(board, g.ID) {
				code, what = CodeDuplicatePosition, "has items sharing a position"
			}
			issues = append(issues, Issue{
				Severity:  SeverityWarning,
				Code:      code,
				Board:     board.ID,
				GroupID:   g.ID,
				Message:   fmt.Sprintf("group %q %s", g.Title, what),
				Fixable:   true,
				FixAction: "renumber the group 0..N-1 in display order",
			})
		}
		if g.Kind == model.GroupKindActive && util.LooksCompleted(g.Title) {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Code:     CodeKindMismatch,
				Board:    board.ID,
				GroupID:  g.ID,
				Message:  fmt.Sprintf("group %q looks like a completion stage but its kind is active", g.Title),
			})
		}
	}
	return issues
}

// Fix repairs fixable issues, one batch per board, and returns a report of
// what remains.
func (s *DoctorService) Fix(ctx context.Context, report *DiagnosticReport) (*DiagnosticReport, error) {
	byBoard := make(map[string][]Issue)
	remaining := []Issue{}
	for _, issue := range report.Issues {
		if issue.Fixable {
			byBoard[issue.Board] = append(byBoard[issue.Board], issue)
		} else {
			remaining = append(remaining, issue)
		}
	}

	boardIDs := make([]string, 0, len(byBoard))
	for b := range byBoard {
		boardIDs = append(boardIDs, b)
	}
	sort.Strings(boardIDs)

	fixed, fixFailed := 0, 0
	for _, boardID := range boardIDs {
		issues := byBoard[boardID]
		if err := s.fixBoard(ctx, boardID); err != nil {
			for _, issue := range issues {
				issue.FixError = err.Error()
				remaining = append(remaining, issue)
			}
			fixFailed += len(issues)
			continue
		}
		fixed += len(issues)
	}

	newReport := &DiagnosticReport{
		Boards:  report.Boards,
		Issues:  remaining,
		Summary: ReportSummary{Fixed: fixed, FixFailed: fixFailed},
	}
	newReport.summarize()
	return newReport, nil
}

func (s *DoctorService) fixBoard(ctx context.Context, boardID string) error {
	board, err := s.backend.LoadBoard(ctx, boardID)
	if err != nil {
		return err
	}
	set := RepairSet(board)
	if set.IsEmpty() {
		return nil
	}
	batch := model.Batch{ID: id.Batch(), BoardID: boardID, Actor: "kanflow doctor", Updates: set}
	if err := s.reorder.Reconcile(ctx, batch); err != nil {
		return err
	}
	return s.reorder.Refresh(ctx, boardID)
}

// RepairSet returns the updates that move orphaned items into the fallback
// group and renumber every group to 0..N-1.
func RepairSet(board *model.Board) model.UpdateSet {
	var set model.UpdateSet
	if fallback := fallbackGroup(board); fallback != nil {
		next := reindex.NextPosition(board, fallback.ID)
		for _, it := range board.Items {
			if board.Group(it.GroupID) == nil {
				set = append(set, model.Update{ItemID: it.ID, GroupID: fallback.ID, Position: next})
				next++
			}
		}
	}

	repaired := cache.Apply(board, set)
	for _, g := range repaired.SortedGroups() {
		for _, u := range reindex.Normalize(repaired, g.ID) {
			if i := indexOfUpdate(set, u.ItemID); i >= 0 {
				set[i] = u
			} else {
				set = append(set, u)
			}
		}
	}
	return set
}

func (s *DoctorService) checkProjectConfig(report *DiagnosticReport) {
	if s.paths == nil {
		return
	}
	cfg, err := config.LoadProject(s.paths)
	if err != nil {
		code := CodeMalformedProjectConfig
		if version.IsSchemaError(err) {
			code = CodeSchemaOutdated
		}
		report.Issues = append(report.Issues, Issue{
			Severity: SeverityError,
			Code:     code,
			Message:  err.Error(),
		})
		return
	}
	if cfg.Schema == "" {
		return
	}
	if err := config.Resolve(cfg).Validate(); err != nil {
		report.Issues = append(report.Issues, Issue{
			Severity: SeverityError,
			Code:     CodeMalformedProjectConfig,
			Message:  err.Error(),
		})
	}
}

func fallbackGroup(board *model.Board) *model.Group {
	for _, g := range board.SortedGroups() {
		if g.Policy.AcceptsCreation {
			return board.Group(g.ID)
		}
	}
	return nil
}

func hasDuplicatePositions(board *model.Board, groupID string) bool {
	seen := make(map[int]bool)
	for _, it := range board.GroupItems(groupID) {
		if seen[it.Position] {
			return true
		}
		seen[it.Position] = true
	}
	return false
}

func indexOfUpdate(set model.UpdateSet, itemID string) int {
	for i, u := range set {
		if u.ItemID == itemID {
			return i
		}
	}
	return -1
}
