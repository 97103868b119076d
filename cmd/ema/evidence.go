package main

import (
	"fmt"
	"text/tabwriter"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/your-org/ema/internal/apperr"
	"github.com/your-org/ema/internal/models"
)

func (a *app) evidenceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "evidence",
		Aliases: []string{"ev"},
		Short:   "Manage a person's evidence files",
	}

	ls := &cobra.Command{
		Use:   "ls <person>",
		Short: "List evidence files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, p, err := a.person(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			files, err := svc.ScanEvidence(cmd.Context(), p.ID)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PATH\tTYPE\tSIZE\tMIME\tCREATED")
			for _, f := range files {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					f.StoredPath, f.FileType, humanize.Bytes(uint64(f.Size)), f.MimeType, humanize.Time(f.CreatedAt))
			}
			return tw.Flush()
		},
	}

	var kind string
	add := &cobra.Command{
		Use:   "add <person> <file>",
		Short: "Copy a file into the person's folder",
		Long: `Copy a file into the matching subfolder of the person's folder. The
type is guessed from the extension unless --type is given; an existing file
with the same name is kept and the copy gets a numbered name.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, p, err := a.person(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			t, err := evidenceType(kind, args[1])
			if err != nil {
				return err
			}
			ef, err := svc.AddEvidence(cmd.Context(), p.ID, args[1], t)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "stored %s (%s)\n", ef.StoredPath, humanize.Bytes(uint64(ef.Size)))
			return nil
		},
	}
	add.Flags().StringVar(&kind, "type", "", "image, audio, video, document or quote")

	rm := &cobra.Command{
		Use:   "rm <person> <stored-path>",
		Short: "Delete an evidence file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, p, err := a.person(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := svc.DeleteEvidence(cmd.Context(), p.ID, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "deleted %s\n", args[1])
			return nil
		},
	}

	mv := &cobra.Command{
		Use:   "mv <person> <stored-path> <new-name>",
		Short: "Rename an evidence file within its subfolder",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, p, err := a.person(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			ef, err := svc.RenameEvidence(cmd.Context(), p.ID, args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "renamed %s to %s\n", args[1], ef.StoredPath)
			return nil
		},
	}

	cmd.AddCommand(ls, add, rm, mv)
	return cmd
}

func evidenceType(flag, path string) (models.EvidenceType, error) {
	if flag != "" {
		t, ok := models.ParseEvidenceType(flag)
		if !ok {
			return "", apperr.Newf(apperr.UnsupportedFileType, "unknown evidence type %q", flag)
		}
		return t, nil
	}
	t, ok := models.EvidenceTypeFromExtension(path)
	if !ok {
		return "", apperr.Newf(apperr.UnsupportedFileType, "cannot tell the evidence type of %s, pass --type", path)
	}
	return t, nil
}
