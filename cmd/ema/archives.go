package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	humanize "github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/your-org/ema/internal/catalog"
	"github.com/your-org/ema/internal/merge"
)

// progressPrinter writes one line per stage change and a final line per stage.
func progressPrinter(w io.Writer, quiet bool) catalog.Progress {
	if quiet {
		return nil
	}
	var last string
	return func(stage string, done, total int) {
		if stage != last {
			last = stage
			fmt.Fprintf(w, "%s...\n", stage)
		}
		if total > 1 && done == total {
			fmt.Fprintf(w, "%s: %d/%d\n", stage, done, total)
		}
	}
}

func (a *app) exportCmd() *cobra.Command {
	var (
		persons []string
		mirror  bool
		quiet   bool
	)
	cmd := &cobra.Command{
		Use:   "export <destination>",
		Short: "Write persons into an .ema archive",
		Long: `Write the selected persons (all of them by default) into an .ema archive.
The .ema extension is added when the destination has none.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			var ids []uuid.UUID
			for _, ref := range persons {
				_, p, err := a.person(cmd.Context(), ref)
				if err != nil {
					return err
				}
				ids = append(ids, p.ID)
			}

			res, err := svc.Export(cmd.Context(), catalog.ExportRequest{
				PersonIDs:   ids,
				Destination: args[0],
				Mirror:      mirror,
			}, progressPrinter(cmd.ErrOrStderr(), quiet))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "exported %d persons, %d files (%s) to %s\n",
				res.Persons, res.Files, humanize.Bytes(uint64(res.Bytes)), res.Path)
			if res.ObjectKey != "" {
				fmt.Fprintf(a.out, "mirrored as %s\n", res.ObjectKey)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&persons, "person", "p", nil, "person to export (id, name or folder; repeatable)")
	cmd.Flags().BoolVar(&mirror, "mirror", false, "also upload the archive to the archive mirror")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "no progress output")
	return cmd
}

func (a *app) importCmd() *cobra.Command {
	var (
		key    string
		asJSON bool
		quiet  bool
	)
	cmd := &cobra.Command{
		Use:   "import [archive]",
		Short: "Merge an .ema archive into the repository",
		Long: `Merge an .ema archive into the repository. Persons are matched by id,
then by exact name; missing information, quotes and evidence are added and
nothing is removed. Importing the same archive twice adds nothing.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := catalog.ImportRequest{ObjectKey: key}
			if len(args) == 1 {
				req.Path = args[0]
			}
			if req.Path == "" && req.ObjectKey == "" {
				return fmt.Errorf("an archive path or --key is required")
			}

			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			report, err := svc.Import(cmd.Context(), req, progressPrinter(cmd.ErrOrStderr(), quiet))
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printReport(a.out, report)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "import a mirrored archive by object key")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the merge report as JSON")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "no progress output")
	return cmd
}

func printReport(w io.Writer, r *merge.Report) {
	fmt.Fprintf(w, "status: %s\n", r.Status())
	fmt.Fprintf(w, "persons: %d created, %d merged\n", r.PersonsCreated, r.PersonsMerged)
	fmt.Fprintf(w, "information: %d added, %d skipped\n", r.InformationAdded, r.InformationSkipped)
	fmt.Fprintf(w, "quotes: %d added, %d skipped\n", r.QuotesAdded, r.QuotesSkipped)
	fmt.Fprintf(w, "evidence: %d added, %d skipped\n", r.EvidenceAdded, r.EvidenceSkipped)
	for _, s := range r.Skipped {
		fmt.Fprintf(w, "skipped folder %s: %s\n", s.Folder, s.Reason)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "failed %s/%s: %s\n", f.Folder, f.File, f.Reason)
	}
}

func (a *app) remoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remote",
		Short: "List archives held by the archive mirror",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			archives, err := svc.RemoteArchives(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tSIZE\tMODIFIED")
			for _, ra := range archives {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", ra.Key, humanize.Bytes(uint64(ra.Size)), humanize.Time(ra.LastModified))
			}
			return tw.Flush()
		},
	}
}
