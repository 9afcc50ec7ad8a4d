package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mmls-attendance/internal/attendance"
	"mmls-attendance/internal/courses"
	"mmls-attendance/internal/db"
	"mmls-attendance/internal/portal"
	"mmls-attendance/internal/telemetry"
	"mmls-attendance/lib/restyutil"

	"github.com/spf13/cobra"
)

type appKeyType int

var appKey appKeyType

// App holds what the commands share, the network and the cache database are only
// touched by commands that need them.
type App struct {
	Config  Config
	Courses *courses.Courses
	Tel     telemetry.API

	client  *portal.Client
	conn    *sql.DB
	scraper *attendance.Scraper
}

func NewApp(cfg Config) (*App, error) {
	c, err := courses.Load(cfg.CoursesFile)
	if err != nil {
		return nil, fmt.Errorf("load courses: %w", err)
	}
	return &App{
		Config:  cfg,
		Courses: c,
		Tel:     telemetry.SlogAPI{},
	}, nil
}

func withApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appKey, app)
}

func getApp(cmd *cobra.Command) *App {
	return cmd.Context().Value(appKey).(*App)
}

func (a *App) Client() (*portal.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	client, err := portal.NewClient(a.Config.PortalOptions(), a.Tel)
	if err != nil {
		return nil, err
	}
	if *dumpHttp != "" {
		out, err := restyutil.NewFilesystemOutput(*dumpHttp)
		if err != nil {
			return nil, err
		}
		restyutil.Dump(client.Http, out)
	}
	a.client = client
	return client, nil
}

// Scraper opens the cache database and creates a scraper over it.
func (a *App) Scraper(ctx context.Context) (*attendance.Scraper, error) {
	if a.scraper != nil {
		return a.scraper, nil
	}
	client, err := a.Client()
	if err != nil {
		return nil, err
	}

	conn, err := a.Config.Cache.OpenDB(ctx, db.Schema)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	cache := attendance.NewCache(attendance.NewSQLStore(conn), a.Tel)
	err = cache.Load(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("load cache: %w", err)
	}

	a.conn = conn
	a.scraper = attendance.NewScraper(client, cache, attendance.ScraperOptions{
		Options: a.Config.AttendanceOptions(),
	}, a.Tel)
	return a.scraper, nil
}

// StudentID prefers the configured id over the one saved with the courses.
func (a *App) StudentID() (string, error) {
	if a.Config.StudentID != "" {
		return a.Config.StudentID, nil
	}
	if a.Courses.StudentID != "" {
		return a.Courses.StudentID, nil
	}
	return "", errors.New("no student id, set student_id in the config or MMLS_STUDENT_ID")
}

func (a *App) SaveCourses() error {
	return courses.Save(a.Config.CoursesFile, a.Courses)
}

func (a *App) Close() error {
	if a.conn == nil {
		return nil
	}
	return a.conn.Close()
}
