package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/your-org/ema/internal/catalog"
)

func (a *app) infoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Manage a person's information entries",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <person> <type> <value>",
		Short: "Add an information entry",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, p, err := a.person(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			entry, err := svc.AddInformation(cmd.Context(), p.ID, args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "added %s %s\n", entry.InfoType, entry.ID)
			return nil
		},
	}, &cobra.Command{
		Use:   "rm <person> <info-id>",
		Short: "Remove an information entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, p, err := a.person(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			id, err := parseEntryID(args[1])
			if err != nil {
				return err
			}
			if err := svc.RemoveInformation(cmd.Context(), p.ID, id); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "removed %s\n", id)
			return nil
		},
	})
	return cmd
}

func (a *app) quoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Manage a person's quotes",
	}

	var date, at, place string
	add := &cobra.Command{
		Use:   "add <person> <quote>",
		Short: "Add a quote; the date defaults to today",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, p, err := a.person(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			in := catalog.QuoteInput{Quote: args[1], Date: date}
			if cmd.Flags().Changed("time") {
				in.Time = &at
			}
			if cmd.Flags().Changed("place") {
				in.Place = &place
			}
			entry, err := svc.AddQuote(cmd.Context(), p.ID, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "added quote %s dated %s\n", entry.ID, entry.Date)
			return nil
		},
	}
	add.Flags().StringVar(&date, "date", "", "date of the quote (YYYY-MM-DD)")
	add.Flags().StringVar(&at, "time", "", "time of the quote")
	add.Flags().StringVar(&place, "place", "", "where it was said")

	cmd.AddCommand(add, &cobra.Command{
		Use:   "rm <person> <quote-id>",
		Short: "Remove a quote",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, p, err := a.person(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			id, err := parseEntryID(args[1])
			if err != nil {
				return err
			}
			if err := svc.RemoveQuote(cmd.Context(), p.ID, id); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "removed %s\n", id)
			return nil
		},
	})
	return cmd
}
