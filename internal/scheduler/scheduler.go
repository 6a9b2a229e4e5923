package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"weekcal/internal/config"
	"weekcal/internal/ics"
	appLog "weekcal/internal/log"
	"weekcal/internal/storage"
	"weekcal/internal/store"
)

// Scheduler runs the periodic background jobs: ICS snapshots, subscription
// sync and a daily storage summary.
type Scheduler struct {
	cron    *cron.Cron
	cfg     *config.Config
	loc     *time.Location
	store   *store.Store
	storage storage.Adapter
	fetcher *ics.Fetcher
	now     func() time.Time
}

func New(cfg *config.Config, st *store.Store, adapter storage.Adapter, fetcher *ics.Fetcher) *Scheduler {
	loc := cfg.Location()
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		cfg:     cfg,
		loc:     loc,
		store:   st,
		storage: adapter,
		fetcher: fetcher,
		now:     time.Now,
	}
}

// Register adds the configured jobs without starting the cron runner.
func (s *Scheduler) Register(ctx context.Context) error {
	if spec := s.cfg.Export.Cron; spec != "" {
		if _, err := s.cron.AddFunc(spec, s.exportJob); err != nil {
			return fmt.Errorf("add export snapshot: %w", err)
		}
	}

	if spec := s.cfg.Import.Cron; spec != "" && len(s.cfg.Subscriptions) > 0 {
		if _, err := s.cron.AddFunc(spec, func() { s.SyncSubscriptions(ctx) }); err != nil {
			return fmt.Errorf("add subscription sync: %w", err)
		}
	}

	if _, err := s.cron.AddFunc("@daily", s.logStorageInfo); err != nil {
		return fmt.Errorf("add storage summary: %w", err)
	}
	return nil
}

// Start registers the jobs, starts the runner and blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Register(ctx); err != nil {
		return err
	}

	s.cron.Start()
	appLog.Info("scheduler started",
		"timezone", s.loc.String(),
		"export_cron", s.cfg.Export.Cron,
		"import_cron", s.cfg.Import.Cron,
		"subscriptions", len(s.cfg.Subscriptions),
	)

	<-ctx.Done()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	appLog.Info("scheduler stopped")
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// ExportSnapshot writes the current events as an .ics file to the
// configured export path.
func (s *Scheduler) ExportSnapshot() error {
	events := s.store.Events()
	body := ics.Export(events, s.now())
	if err := config.WriteFileAtomic(s.cfg.Export.Path, body, 0o600); err != nil {
		return fmt.Errorf("write snapshot %s: %w", s.cfg.Export.Path, err)
	}
	appLog.Info("ics snapshot written", "path", s.cfg.Export.Path, "events", len(events), "bytes", len(body))
	return nil
}

func (s *Scheduler) exportJob() {
	if err := s.ExportSnapshot(); err != nil {
		appLog.Error("scheduled snapshot failed", err)
	}
}

// Sources converts the configured subscriptions into fetch sources,
// skipping entries without a URL.
func (s *Scheduler) Sources() []ics.Source {
	sources := make([]ics.Source, 0, len(s.cfg.Subscriptions))
	for _, sub := range s.cfg.Subscriptions {
		if sub.URL == "" {
			continue
		}
		id := sub.ID
		if id == "" {
			if sub.Name != "" {
				id = sub.Name
			} else {
				id = sub.URL
			}
		}
		sources = append(sources, ics.Source{ID: id, URL: sub.URL})
	}
	return sources
}

// ImportWindow is the expansion window used for imports, relative to now.
func (s *Scheduler) ImportWindow() ics.ExpandConfig {
	return ics.Window(s.loc, s.now(), s.cfg.Import.BackfillDays, s.cfg.Import.HorizonDays)
}

// SyncSubscriptions fetches every subscription and merges the result into
// the store.
func (s *Scheduler) SyncSubscriptions(ctx context.Context) (added, replaced int, err error) {
	sources := s.Sources()
	if len(sources) == 0 {
		return 0, 0, nil
	}

	drafts, errs := s.fetcher.FetchDrafts(ctx, sources, s.ImportWindow())
	added, replaced = s.store.Merge(drafts)
	appLog.Info("subscriptions synced",
		"sources", len(sources),
		"drafts", len(drafts),
		"added", added,
		"replaced", replaced,
		"errors", len(errs),
	)
	return added, replaced, errors.Join(errs...)
}

func (s *Scheduler) logStorageInfo() {
	info, ok := s.storage.Info()
	if !ok {
		appLog.Warn("storage info unavailable")
		return
	}
	appLog.Info("storage summary",
		"count", info.Count,
		"size_bytes", info.SizeBytes,
		"last_modified", info.LastModified.Format(time.RFC3339),
	)
}
