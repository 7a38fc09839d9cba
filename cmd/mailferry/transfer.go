package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/mailferry/mailferry/pkg/mailferry"
)

const (
	defaultRate       = 2.0
	defaultPageSize   = 100
	defaultMaxRetries = 5
)

// summaryOutput is JSON output for a transfer run
type summaryOutput struct {
	Processed     int            `json:"processed"`
	Transferred   int            `json:"transferred"`
	Skipped       int            `json:"skipped,omitempty"`
	Failed        int            `json:"failed"`
	LabelsCreated []string       `json:"labelsCreated"`
	LabelCounts   map[string]int `json:"labelCounts"`
	DryRun        bool           `json:"dryRun"`
}

func runTransfer(ctx context.Context, cli *CLI, out *outputWriter) error {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}

	source := firstNonEmpty(cli.Transfer.Source, cfg.Source)
	archive := firstNonEmpty(cli.Transfer.Archive, cfg.Archive)
	if source == "" || archive == "" {
		return errors.New("both a source and an archive account are required (--source/--archive or config.yaml)")
	}
	if source == archive {
		return errors.Errorf("source and archive are the same account: %s", source)
	}

	rate := cli.Transfer.Rate
	if rate <= 0 {
		rate = cfg.Rate
	}
	if rate <= 0 {
		rate = defaultRate
	}
	pageSize := cli.Transfer.PageSize
	if pageSize <= 0 {
		pageSize = cfg.PageSize
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	maxRetries := cli.Transfer.MaxRetries
	if maxRetries <= 0 {
		maxRetries = cfg.MaxRetries
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	src, err := mailferry.Connect(ctx, cli.Config, source)
	if err != nil {
		return err
	}
	out.writeVerbose("Connected to source account %s", src.Account())
	dst, err := mailferry.Connect(ctx, cli.Config, archive)
	if err != nil {
		return err
	}
	out.writeVerbose("Connected to archive account %s", dst.Account())

	svc := mailferry.NewService(src, dst, mailferry.NewTokenBucket(rate))
	svc.PageSize = pageSize
	svc.MaxRetries = maxRetries
	if cli.Transfer.Yes {
		svc.Prompt = mailferry.AutoApprove{}
	}

	if cli.Transfer.DryRun {
		out.writeMessage(fmt.Sprintf("Dry run: no changes will be made to %s.", archive))
	} else {
		out.writeBanner(fmt.Sprintf("LIVE RUN: messages will be imported into %s.", archive))
	}

	spec := mailferry.Spec{
		SourceAccount: source,
		DryRun:        cli.Transfer.DryRun,
		Dedup:         cli.Transfer.Dedup,
		Limit:         cli.Transfer.Limit,
	}
	sum, runErr := svc.Run(ctx, spec)
	reportSummary(out, sum, cli.Transfer.DryRun)
	if runErr != nil {
		return errors.Wrap(runErr, "transfer run")
	}
	return nil
}

func reportSummary(out *outputWriter, sum *mailferry.Summary, dryRun bool) {
	if out.json {
		counts := sum.LabelCounts
		if counts == nil {
			counts = map[string]int{}
		}
		_ = out.writeJSON(summaryOutput{
			Processed:     sum.Processed,
			Transferred:   sum.Transferred,
			Skipped:       sum.Skipped,
			Failed:        sum.Failed,
			LabelsCreated: sum.LabelsCreated,
			LabelCounts:   counts,
			DryRun:        dryRun,
		})
		return
	}

	out.writeMessage("")
	out.writeMessage(fmt.Sprintf("Processed:   %d", sum.Processed))
	out.writeMessage(fmt.Sprintf("Transferred: %d", sum.Transferred))
	if sum.Skipped > 0 {
		out.writeMessage(fmt.Sprintf("Skipped:     %d (already archived)", sum.Skipped))
	}
	out.writeMessage(fmt.Sprintf("Failed:      %d", sum.Failed))

	if len(sum.LabelsCreated) > 0 {
		out.writeMessage("")
		header := "Labels created:"
		if dryRun {
			header = "Labels that would be created:"
		}
		out.writeMessage(header)
		rows := make([][]string, 0, len(sum.LabelsCreated))
		for _, name := range sum.LabelsCreated {
			rows = append(rows, []string{name, fmt.Sprintf("%d", sum.LabelCounts[name])})
		}
		_ = out.writeTable([]string{"NAME", "MESSAGES"}, rows)
	}

	if merr, ok := sum.Errors.(*multierror.Error); ok && len(merr.Errors) > 0 {
		out.writeMessage("")
		out.writeMessage(fmt.Sprintf("Per-message failures (%d):", len(merr.Errors)))
		errs := make([]string, 0, len(merr.Errors))
		for _, e := range merr.Errors {
			errs = append(errs, e.Error())
		}
		sort.Strings(errs)
		for _, e := range errs {
			out.writeMessage("  - " + e)
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
