// Package curator merges solved-problem transcripts into session memory.
// One curation round issues one model invocation, parses the delimited
// cheatsheet section from the response, and reconciles it with the stored
// entries by content signature.
package curator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/invoker"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/memory"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/metrics"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/template"
	svcerrors "github.com/OneChainTech/dynamic-cheatsheet/pkg/errors"
)

const (
	// SectionMarker precedes the updated cheatsheet in a curation
	// response. The section runs from the last occurrence.
	SectionMarker = "NEW CHEATSHEET:"

	// EndMarker optionally terminates the section.
	EndMarker = "END OF CHEATSHEET"
)

// Invoker is the seam to the model call policy.
type Invoker interface {
	Invoke(ctx context.Context, purpose, prompt string) (string, error)
}

// MergeReport counts entry-level outcomes of one curation round.
type MergeReport struct {
	Added      int `json:"added"`
	Kept       int `json:"kept"`
	Superseded int `json:"superseded"`
}

// Changed reports whether the round altered the stored entry set.
func (r MergeReport) Changed() bool {
	return r.Added > 0 || r.Superseded > 0
}

// Result describes the session memory after a curation round.
type Result struct {
	Cheatsheet string
	Report     MergeReport
	Entries    int
}

// Curator runs curation rounds against a store.
type Curator struct {
	store   memory.Store
	invoker Invoker
	tpl     *template.Template
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a curator. A nil logger falls back to slog.Default.
func New(store memory.Store, inv Invoker, tpl *template.Template, logger *slog.Logger) *Curator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Curator{
		store:   store,
		invoker: inv,
		tpl:     tpl,
		logger:  logger,
		now:     time.Now,
	}
}

// Curate merges one (question, model output) transcript into the session's
// memory. On a parse failure the store is left untouched and a
// CurationParseError is returned; the caller reports it as a warning, not
// a fatal error.
func (c *Curator) Curate(ctx context.Context, sessionID, queryID, question, modelOutput string) (*Result, error) {
	existing, err := c.store.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	prompt := c.tpl.Render(map[string]string{
		template.PlaceholderPreviousCheatsheet: memory.Render(existing),
		template.PlaceholderQuestion:           question,
		template.PlaceholderModelAnswer:        modelOutput,
	})

	response, err := c.invoker.Invoke(ctx, invoker.PurposeCurate, prompt)
	if err != nil {
		return nil, err
	}

	section, err := ParseSection(response)
	if err != nil {
		metrics.CurationsTotal.WithLabelValues("parse_error").Inc()
		c.logger.Warn("curation response could not be parsed",
			"session_id", sessionID,
			"query_id", queryID,
			"error", err,
		)
		return nil, err
	}

	blocks := memory.SplitBlocks(section)
	if len(blocks) == 0 {
		metrics.CurationsTotal.WithLabelValues("parse_error").Inc()
		return nil, svcerrors.NewCurationParseError("curated section carried no entries")
	}

	next, added, report := merge(existing, blocks, queryID, c.now())

	switch {
	case report.Superseded > 0:
		err = c.store.Replace(ctx, sessionID, next)
	case report.Added > 0:
		err = c.store.Append(ctx, sessionID, added)
	}
	if err != nil {
		return nil, err
	}

	if report.Changed() {
		metrics.CurationsTotal.WithLabelValues("applied").Inc()
	} else {
		metrics.CurationsTotal.WithLabelValues("unchanged").Inc()
	}
	metrics.CurationEntries.WithLabelValues("added").Add(float64(report.Added))
	metrics.CurationEntries.WithLabelValues("kept").Add(float64(report.Kept))
	metrics.CurationEntries.WithLabelValues("superseded").Add(float64(report.Superseded))

	c.logger.Info("curation round merged",
		"session_id", sessionID,
		"query_id", queryID,
		"added", report.Added,
		"kept", report.Kept,
		"superseded", report.Superseded,
		"entries", len(next),
	)

	return &Result{
		Cheatsheet: memory.Render(next),
		Report:     report,
		Entries:    len(next),
	}, nil
}

// ParseSection extracts the curated cheatsheet section from a model
// response: everything after the last SectionMarker, cut at the EndMarker
// when present, with a wrapping code fence stripped.
func ParseSection(response string) (string, error) {
	idx := strings.LastIndex(response, SectionMarker)
	if idx < 0 {
		return "", svcerrors.NewCurationParseError("response carries no " + SectionMarker + " marker")
	}
	section := response[idx+len(SectionMarker):]
	if end := strings.Index(section, EndMarker); end >= 0 {
		section = section[:end]
	}
	section = stripFence(strings.TrimSpace(section))
	if section == "" {
		return "", svcerrors.NewCurationParseError("curated section is empty")
	}
	return section, nil
}

// stripFence removes one wrapping triple-backtick fence, tolerating a
// language tag on the opening line.
func stripFence(text string) string {
	if len(text) < 6 || !strings.HasPrefix(text, "```") || !strings.HasSuffix(text, "```") {
		return text
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(text, "```"), "```")
	if nl := strings.Index(inner, "\n"); nl >= 0 {
		inner = inner[nl+1:]
	}
	return strings.TrimSpace(inner)
}

// merge reconciles curated blocks with the stored entries. Existing entries
// named by the curated output survive untouched in their original order;
// curated blocks with no stored counterpart become new entries appended
// after them; stored entries missing from the curated output are dropped.
// Duplicate blocks inside one response collapse to a single entry.
func merge(existing []memory.Entry, blocks []string, queryID string, now time.Time) (next []memory.Entry, added []memory.Entry, report MergeReport) {
	curated := make(map[string]bool, len(blocks))
	var fresh []string
	for _, block := range blocks {
		sig := memory.Signature(block)
		if curated[sig] {
			continue
		}
		curated[sig] = true
		fresh = append(fresh, block)
	}

	stored := make(map[string]bool, len(existing))
	for _, e := range existing {
		stored[e.Signature] = true
		if curated[e.Signature] {
			next = append(next, e)
			report.Kept++
		} else {
			report.Superseded++
		}
	}

	for _, block := range fresh {
		if stored[memory.Signature(block)] {
			continue
		}
		entry := memory.NewEntry(block, queryID, now)
		added = append(added, entry)
		next = append(next, entry)
		report.Added++
	}
	return next, added, report
}
