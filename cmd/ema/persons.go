package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/your-org/ema/internal/catalog"
)

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [query]",
		Short: "List persons, optionally filtered by name or glob",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			var query string
			if len(args) == 1 {
				query = args[0]
			}
			persons, err := svc.ListPersons(cmd.Context(), query)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tFOLDER\tINFO\tQUOTES\tUPDATED")
			for _, p := range persons {
				folder, _ := svc.Folder(p.ID)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
					p.ID, p.Name, folder, len(p.Information), len(p.Quotes), humanize.Time(p.UpdatedAt))
			}
			return tw.Flush()
		},
	}
}

func (a *app) addCmd() *cobra.Command {
	var (
		notes string
		tags  []string
	)
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a person and its folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			p, err := svc.AddPerson(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if notes != "" || len(tags) > 0 {
				if p, err = svc.UpdatePerson(cmd.Context(), p.ID, catalog.PersonUpdate{Notes: &notes, Tags: &tags}); err != nil {
					return err
				}
			}
			folder, _ := svc.Folder(p.ID)
			fmt.Fprintf(a.out, "created %s (%s) in %s\n", p.Name, p.ID, folder)
			return nil
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag to attach (repeatable)")
	return cmd
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <person>",
		Short: "Show a person with information, quotes and evidence",
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
			folder, _ := svc.Folder(p.ID)

			fmt.Fprintf(a.out, "%s\n  id:      %s\n  folder:  %s\n  created: %s\n  updated: %s\n",
				p.Name, p.ID, folder, p.CreatedAt.Format("2006-01-02 15:04"), humanize.Time(p.UpdatedAt))
			if len(p.Tags) > 0 {
				fmt.Fprintf(a.out, "  tags:    %s\n", strings.Join(p.Tags, ", "))
			}
			if p.Notes != "" {
				fmt.Fprintf(a.out, "  notes:   %s\n", p.Notes)
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "\nInformation (%d)\n", len(p.Information))
			for _, e := range p.Information {
				fmt.Fprintf(tw, "  %s\t%s\t%s\n", e.ID, e.InfoType, e.Value)
			}
			fmt.Fprintf(tw, "\nQuotes (%d)\n", len(p.Quotes))
			for _, q := range p.Quotes {
				when := q.Date
				if q.Time != nil && *q.Time != "" {
					when += " " + *q.Time
				}
				if q.Place != nil && *q.Place != "" {
					when += " @ " + *q.Place
				}
				fmt.Fprintf(tw, "  %s\t%s\t%q\n", q.ID, when, q.Quote)
			}
			fmt.Fprintf(tw, "\nEvidence (%d)\n", len(files))
			for _, f := range files {
				fmt.Fprintf(tw, "  %s\t%s\t%s\n", f.StoredPath, f.FileType, humanize.Bytes(uint64(f.Size)))
			}
			return tw.Flush()
		},
	}
}

func (a *app) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <person>",
		Short: "Delete a person and its folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, p, err := a.person(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := svc.DeletePerson(cmd.Context(), p.ID); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "deleted %s (%s)\n", p.Name, p.ID)
			return nil
		},
	}
}

func (a *app) renameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <person> <new-name>",
		Short: "Change a person's display name; the folder keeps its name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, p, err := a.person(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			name := args[1]
			updated, err := svc.UpdatePerson(cmd.Context(), p.ID, catalog.PersonUpdate{Name: &name})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "renamed %s to %s\n", p.Name, updated.Name)
			return nil
		},
	}
}
