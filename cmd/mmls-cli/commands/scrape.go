package commands

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"mmls-attendance/internal/attendance"
	"mmls-attendance/internal/chrono"
	"mmls-attendance/internal/courses"

	"github.com/spf13/cobra"
)

var (
	scrapeWithList     *bool
	scrapeSubject      *string
	scrapeDateSlow     *bool
	scrapeDateCached   *bool
	scrapeDateWithList *bool
	scrapeDateSubject  *string
)

func init() {
	scrapeWithList = scrapeCmd.Flags().Bool("list", false, "Also print the link to the list of students who signed.")
	scrapeSubject = scrapeCmd.Flags().String("subject", "", "Only show one subject, by code or (approximate) name.")
	rootCmd.AddCommand(scrapeCmd)

	scrapeDateSlow = scrapeDateCmd.Flags().Bool("slow", false, "Start from an id 1-2 months before the start date instead of resolving the exact id range.")
	scrapeDateCached = scrapeDateCmd.Flags().Bool("cache-only", false, "Only look at what is already cached.")
	scrapeDateWithList = scrapeDateCmd.Flags().Bool("list", false, "Also print the link to the list of students who signed.")
	scrapeDateSubject = scrapeDateCmd.Flags().String("subject", "", "Only show one subject, by code or (approximate) name.")
	rootCmd.AddCommand(scrapeDateCmd)
}

func requireSelection(app *App) error {
	if len(app.Courses.SelectedClasses()) == 0 {
		return errors.New("no classes selected, run autoselect or select first")
	}
	return nil
}

// subjectFilter resolves a --subject query, an empty query keeps every form.
func subjectFilter(c *courses.Courses, query string) (func(attendance.DetailedForm) bool, error) {
	if query == "" {
		return func(attendance.DetailedForm) bool { return true }, nil
	}
	subject := c.FindSubject(query)
	if subject == nil {
		return nil, fmt.Errorf("no subject matches %q", query)
	}
	slog.Debug("filtering by subject", "code", subject.Code, "name", subject.Name)
	return func(f attendance.DetailedForm) bool {
		return f.SubjectID == subject.ID
	}, nil
}

// collectForms drains forms, an interrupt keeps what was found so far.
func collectForms(ctx context.Context, forms iter.Seq2[attendance.DetailedForm, error], keep func(attendance.DetailedForm) bool) ([]attendance.DetailedForm, error) {
	var out []attendance.DetailedForm
	for form, err := range forms {
		if err != nil {
			return out, err
		}
		if keep != nil && !keep(form) {
			continue
		}
		slog.Debug("found attendance", "timetable_id", form.TimetableID, "subject", form.SubjectCode, "class", form.ClassCode)
		out = append(out, form)
	}
	if ctx.Err() != nil {
		slog.Warn("interrupted, showing partial results")
	}
	return out, nil
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape <start-id> <end-id>",
	Short: "Looks for attendance links of the selected classes within a range of timetable ids.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := getApp(cmd)
		rng, err := parseIDRange(args[0], args[1])
		if err != nil {
			return err
		}
		err = requireSelection(app)
		if err != nil {
			return err
		}
		keep, err := subjectFilter(app.Courses, *scrapeSubject)
		if err != nil {
			return err
		}
		scraper, err := app.Scraper(cmd.Context())
		if err != nil {
			return err
		}

		t1 := time.Now()
		forms, err := collectForms(cmd.Context(), scraper.Scrape(cmd.Context(), rng, app.Courses), keep)
		if err != nil {
			return err
		}
		slog.Info("scraping time", "seconds", time.Since(t1).Seconds(), "found", len(forms))
		renderForms(cmd.OutOrStdout(), forms, app.Config.BaseURL, *scrapeWithList)
		return nil
	},
}

var scrapeDateCmd = &cobra.Command{
	Use:   "scrape-date <start-date> [end-date]",
	Short: "Looks for attendance links of the selected classes between two dates (YYYY-MM-DD, today or tomorrow).",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := getApp(cmd)
		clock := chrono.NewStandardImpl()
		start, err := parseDateArg(args[0], clock)
		if err != nil {
			return err
		}
		end := start
		if len(args) > 1 {
			end, err = parseDateArg(args[1], clock)
			if err != nil {
				return err
			}
		}
		err = requireSelection(app)
		if err != nil {
			return err
		}
		keep, err := subjectFilter(app.Courses, *scrapeDateSubject)
		if err != nil {
			return err
		}
		scraper, err := app.Scraper(cmd.Context())
		if err != nil {
			return err
		}

		t1 := time.Now()
		forms, err := collectForms(cmd.Context(), scraper.ScrapeByDate(cmd.Context(), start, end, app.Courses, attendance.DateOptions{
			Fast:      !*scrapeDateSlow,
			CacheOnly: *scrapeDateCached,
		}), keep)
		if err != nil {
			return err
		}
		slog.Info("scraping time", "seconds", time.Since(t1).Seconds(), "found", len(forms))
		renderForms(cmd.OutOrStdout(), forms, app.Config.BaseURL, *scrapeDateWithList)
		return nil
	},
}

func parseIDRange(start, end string) (attendance.IDRange, error) {
	s, err := strconv.Atoi(start)
	if err != nil {
		return attendance.IDRange{}, fmt.Errorf("%w: start id %q", attendance.ErrInvalidInput, start)
	}
	e, err := strconv.Atoi(end)
	if err != nil {
		return attendance.IDRange{}, fmt.Errorf("%w: end id %q", attendance.ErrInvalidInput, end)
	}
	rng := attendance.IDRange{Start: s, End: e}
	return rng, rng.Validate()
}

func parseDateArg(arg string, clock chrono.API) (time.Time, error) {
	switch strings.ToLower(arg) {
	case "today":
		return chrono.Today(clock), nil
	case "tomorrow":
		return chrono.Today(clock).AddDate(0, 0, 1), nil
	}
	date, err := chrono.ParseDate(arg)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q, expected YYYY-MM-DD", attendance.ErrInvalidInput, arg)
	}
	return date, nil
}
