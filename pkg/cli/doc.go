// Package cli holds helpers shared by the chatbetter2api commands: output
// formatting, progress bars, signal handling and exit codes.
//
// Results implementing Tabular print as aligned columns or CSV; everything
// prints as JSON:
//
//	format, err := cli.ParseOutputFormat(flagOutput)
//	err = cli.NewFormatter(format).FormatTo(os.Stdout, accountRows)
//
// Bulk operations report through a ProgressReporter:
//
//	summary, err := runner.RefreshAll(ctx, cli.NewLabeledProgress(os.Stderr, "Refreshing"))
package cli
