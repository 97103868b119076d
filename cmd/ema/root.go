package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/your-org/ema/internal/apperr"
	"github.com/your-org/ema/internal/catalog"
	"github.com/your-org/ema/internal/config"
	"github.com/your-org/ema/internal/models"
	"github.com/your-org/ema/internal/observability"
	"github.com/your-org/ema/internal/storage"
)

// app carries the state shared by every subcommand.
type app struct {
	out        io.Writer
	configPath string
	root       string
	cfg        *config.Config
	svc        *catalog.Service
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:   "ema",
		Short: "Manage persons, information, quotes and evidence files",
		Long: `ema operates directly on a local evidence repository: one folder per
person holding person_data.json plus images/, audio/, videos/, documents/
and quotes/ subfolders.

Archives (.ema) carry whole persons between repositories. Importing merges
into existing persons and never deletes anything.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&a.configPath, "config", "configs/config.yaml", "path to config file")
	root.PersistentFlags().StringVar(&a.root, "root", "", "repository root (overrides config)")

	root.AddCommand(
		a.listCmd(),
		a.addCmd(),
		a.showCmd(),
		a.rmCmd(),
		a.renameCmd(),
		a.infoCmd(),
		a.quoteCmd(),
		a.evidenceCmd(),
		a.exportCmd(),
		a.importCmd(),
		a.remoteCmd(),
		a.eventsCmd(),
	)
	return root
}

func (a *app) loadConfig() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.LoadOptional(a.configPath)
	if err != nil {
		return nil, err
	}
	if a.root != "" {
		cfg.Repository.Root = a.root
	}
	// Logs go to stderr so listings stay parseable.
	observability.SetupLogger(cfg.Logging.Level, "text")
	a.cfg = cfg
	return cfg, nil
}

// service opens the repository on first use.
func (a *app) service(ctx context.Context) (*catalog.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}

	opts := catalog.Options{
		Root:        cfg.Repository.Root,
		ScanWorkers: cfg.Repository.ScanWorkers,
		MatchByName: cfg.Repository.MatchByNameEnabled(),
		StagingDir:  cfg.Archive.StagingDir,
	}
	if cfg.Mirror.Enabled {
		mirror, err := storage.NewArchiveMirror(cfg.Mirror)
		if err != nil {
			return nil, fmt.Errorf("connect to archive mirror: %w", err)
		}
		opts.Mirror = mirror
	}

	svc, err := catalog.New(ctx, opts)
	if err != nil {
		return nil, err
	}
	for _, w := range svc.Warnings() {
		fmt.Fprintf(os.Stderr, "warning: skipped %s: %s\n", w.Folder, w.Reason)
	}
	a.svc = svc
	return svc, nil
}

// person finds a person by id, exact name or folder name.
func (a *app) person(ctx context.Context, ref string) (*catalog.Service, *models.Person, error) {
	svc, err := a.service(ctx)
	if err != nil {
		return nil, nil, err
	}
	if id, err := uuid.Parse(ref); err == nil {
		p, err := svc.GetPerson(id)
		return svc, p, err
	}

	persons, err := svc.ListPersons(ctx, "")
	if err != nil {
		return nil, nil, err
	}
	var matches []*models.Person
	for _, p := range persons {
		folder, _ := svc.Folder(p.ID)
		if p.Name == ref || strings.EqualFold(folder, ref) {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 0:
		return nil, nil, apperr.Newf(apperr.NotFound, "no person named %q", ref)
	case 1:
		return svc, matches[0], nil
	default:
		return nil, nil, apperr.Newf(apperr.InvalidInput, "%d persons match %q, use the id", len(matches), ref)
	}
}

func parseEntryID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, apperr.Wrap(apperr.InvalidInput, fmt.Sprintf("invalid id %q", s), err)
	}
	return id, nil
}
