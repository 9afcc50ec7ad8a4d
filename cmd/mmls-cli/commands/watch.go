package commands

import (
	"context"
	"log/slog"

	"mmls-attendance/internal/attendance"
	"mmls-attendance/internal/chrono"
	"mmls-attendance/internal/courses"
	"mmls-attendance/internal/notify"
	"mmls-attendance/lib/telemetry"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(watchCmd)
}

type notifier interface {
	Notify(ctx context.Context, forms []attendance.DetailedForm) (int, error)
}

// watcher looks for the sessions of the next few days and reports each one once.
type watcher struct {
	scraper   *attendance.Scraper
	courses   *courses.Courses
	clock     chrono.API
	daysAhead int
	baseURL   string
	// notifier may be nil, new links are only logged then.
	notifier notifier

	seen map[int]struct{}
}

// run returns the forms that were not found by an earlier run.
func (w *watcher) run(ctx context.Context) []attendance.DetailedForm {
	start := chrono.Today(w.clock)
	end := start.AddDate(0, 0, w.daysAhead)

	forms, err := collectForms(ctx, w.scraper.ScrapeByDate(ctx, start, end, w.courses, attendance.DateOptions{Fast: true}), nil)
	if err != nil {
		slog.WarnContext(ctx, "watch run failed", "err", err)
		return nil
	}

	var fresh []attendance.DetailedForm
	for _, form := range forms {
		if _, ok := w.seen[form.TimetableID]; ok {
			continue
		}
		w.seen[form.TimetableID] = struct{}{}
		fresh = append(fresh, form)
		slog.InfoContext(
			ctx, "new attendance link",
			"subject", form.SubjectCode,
			"class", form.ClassCode,
			"date", form.ClassDate,
			"start", form.StartTime,
			"url", form.AttendanceURL(w.baseURL),
		)
	}

	if w.notifier != nil {
		// every found form is passed, the notifier retries whatever it failed to send before
		sent, err := w.notifier.Notify(ctx, forms)
		if err != nil {
			slog.WarnContext(ctx, "failed to send notification", "err", err)
		} else if sent > 0 {
			slog.InfoContext(ctx, "sent notification", "links", sent)
		}
	}
	return fresh
}

// refresh brings the whole cache up to date, a rotated portal clears it first.
func (w *watcher) refresh(ctx context.Context) {
	count, err := w.scraper.CacheRefresh(ctx, nil)
	if err != nil {
		slog.WarnContext(ctx, "cache refresh failed", "err", err)
		return
	}
	slog.InfoContext(ctx, "refreshed cache", "entries", count)
}

// invalidate drops cached forms the portal no longer serves.
func (w *watcher) invalidate(ctx context.Context) {
	cleared, err := w.scraper.InvalidateStaleCache(ctx)
	if err != nil {
		slog.WarnContext(ctx, "cache staleness check failed", "err", err)
		return
	}
	if cleared {
		slog.InfoContext(ctx, "cleared stale cache")
	}
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Periodically looks for new attendance links from today onwards and mails them.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app := getApp(cmd)
		err := requireSelection(app)
		if err != nil {
			return err
		}
		scraper, err := app.Scraper(ctx)
		if err != nil {
			return err
		}

		w := &watcher{
			scraper:   scraper,
			courses:   app.Courses,
			clock:     chrono.NewStandardImpl(),
			daysAhead: app.Config.Watch.DaysAhead,
			baseURL:   app.Config.BaseURL,
			seen:      map[int]struct{}{},
		}
		if app.Config.Watch.Notify {
			w.notifier = notify.NewNotifier(notify.Options{
				Smtp:    app.Config.Smtp,
				To:      app.Config.Watch.NotifyTo,
				BaseURL: app.Config.BaseURL,
			}, app.Tel)
		}
		if app.Config.Watch.PerfStatsSeconds > 0 {
			telemetry.InstrumentPerfStats(ctx, seconds(app.Config.Watch.PerfStatsSeconds))
		}

		w.invalidate(ctx)
		w.run(ctx)

		cronner := chrono.NewStandardCron(app.Tel)
		defer cronner.Stop()
		err = cronner.Cron(app.Config.Watch.Schedule, func() {
			w.run(ctx)
		})
		if err != nil {
			return err
		}
		err = cronner.Cron(app.Config.Watch.RefreshSchedule, func() {
			w.refresh(ctx)
		})
		if err != nil {
			return err
		}

		slog.Info(
			"watching for attendance links",
			"schedule", app.Config.Watch.Schedule,
			"refresh_schedule", app.Config.Watch.RefreshSchedule,
			"days_ahead", w.daysAhead,
		)
		<-ctx.Done()
		return nil
	},
}
