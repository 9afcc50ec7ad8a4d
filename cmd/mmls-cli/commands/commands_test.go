package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mmls-attendance/internal/attendance"
	"mmls-attendance/internal/chrono"
	"mmls-attendance/internal/courses"
	"mmls-attendance/internal/portal"
	"mmls-attendance/internal/telemetry"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	xdg.Reload()
	t.Setenv("MMLS_STUDENT_ID", "")
	t.Setenv("MMLS_PASSWORD", "from-env")

	path := filepath.Join(dir, "config.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{
		// comments are fine
		student_id: "1211100000",
		password: "from-file",
		max_connections: 4,
		timeout_seconds: 5,
		watch: { days_ahead: 2 },
	}`), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.local.json5"), []byte(`{
		max_connections: 6,
	}`), 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "1211100000", cfg.StudentID)
	require.Equal(t, "from-env", cfg.Password)
	require.Equal(t, 6, cfg.MaxConnections)
	require.Equal(t, portal.DefaultBaseURL, cfg.BaseURL)
	require.Equal(t, 2, cfg.Watch.DaysAhead)
	require.NotEmpty(t, cfg.Watch.Schedule)
	require.NotEmpty(t, cfg.Watch.RefreshSchedule)
	require.Equal(t, filepath.Join(dir, "data", dataDir, "courses.json"), cfg.CoursesFile)
	require.Equal(t, filepath.Join(dir, "data", dataDir, "attendance.db"), cfg.Cache.Target())

	opts := cfg.PortalOptions()
	require.Equal(t, 5*time.Second, opts.Timeout)
	require.Equal(t, 6, opts.MaxConnections)

	attendanceOpts := cfg.AttendanceOptions()
	require.Equal(t, attendance.DefaultMaxID, attendanceOpts.MaxID)
	require.Equal(t, 6, attendanceOpts.MaxConnections)
}

func TestLoadConfigMissingFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)
	xdg.Reload()

	cfg, err := LoadConfig(filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, portal.DefaultBaseURL, cfg.BaseURL)

	require.NotEmpty(t, cfg.Cache.File)
}

func TestParseArgs(t *testing.T) {
	rng, err := parseIDRange("10", "20")
	require.NoError(t, err)
	require.Equal(t, attendance.IDRange{Start: 10, End: 20}, rng)

	_, err = parseIDRange("20", "10")
	require.ErrorIs(t, err, attendance.ErrInvalidInput)
	_, err = parseIDRange("ten", "20")
	require.ErrorIs(t, err, attendance.ErrInvalidInput)

	clock := chrono.FixedImpl{At: time.Date(2024, 3, 1, 23, 0, 0, 0, chrono.PortalLocation)}
	date, err := parseDateArg("tomorrow", clock)
	require.NoError(t, err)
	require.Equal(t, "2024-03-02", chrono.FormatDate(date))

	date, err = parseDateArg("2024-02-29", clock)
	require.NoError(t, err)
	require.Equal(t, "2024-02-29", chrono.FormatDate(date))

	_, err = parseDateArg("29/02/2024", clock)
	require.ErrorIs(t, err, attendance.ErrInvalidInput)
}

func TestRenderCourses(t *testing.T) {
	c := &courses.Courses{}
	s := c.AddSubject(10, "ECE2056", "DATA COMMUNICATIONS", 7)
	s.AddClass(500, "EC01", true)
	s.AddClass(501, "EC02", false)
	c.AddSubject(11, "MPU3123", "TITAS", 8)

	var out bytes.Buffer
	renderCourses(&out, c)
	text := out.String()
	require.Contains(t, text, "a. EC01")
	require.Contains(t, text, "b. EC02")
	require.Contains(t, text, "MPU3123")
}

type fakeNotifier struct {
	mutex sync.Mutex
	calls [][]attendance.DetailedForm
}

func (n *fakeNotifier) Notify(_ context.Context, forms []attendance.DetailedForm) (int, error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.calls = append(n.calls, forms)
	return len(forms), nil
}

func TestWatcherReportsOnce(t *testing.T) {
	source := attendance.SourceFunc(func(_ context.Context, id int) (*attendance.Form, error) {
		if id > 20 {
			return nil, nil
		}
		return &attendance.Form{
			TimetableID: id,
			StartTime:   "08:00:00",
			EndTime:     "10:00:00",
			ClassDate:   "2024-03-01",
			ClassID:     500,
		}, nil
	})
	scraper := attendance.NewScraper(source, nil, attendance.ScraperOptions{
		Options: attendance.Options{MinID: 1, MaxID: 40},
	}, &telemetry.Recorder{})

	c := &courses.Courses{}
	c.AddSubject(10, "ECE2056", "DATA COMMUNICATIONS", 7).AddClass(500, "EC01", true)

	n := &fakeNotifier{}
	w := &watcher{
		scraper:  scraper,
		courses:  c,
		clock:    chrono.FixedImpl{At: time.Date(2024, 3, 1, 9, 0, 0, 0, chrono.PortalLocation)},
		baseURL:  portal.DefaultBaseURL,
		notifier: n,
		seen:     map[int]struct{}{},
	}

	fresh := w.run(context.Background())
	require.Len(t, fresh, 20)
	fresh = w.run(context.Background())
	require.Empty(t, fresh)
	require.Len(t, n.calls, 2)
	require.Len(t, n.calls[0], 20)
}

func TestWatcherDropsRotatedCache(t *testing.T) {
	// the portal moved on to a new trimester and reuses the ids
	source := attendance.SourceFunc(func(_ context.Context, id int) (*attendance.Form, error) {
		if id > 20 {
			return nil, nil
		}
		return &attendance.Form{
			TimetableID: id,
			StartTime:   "08:00:00",
			EndTime:     "10:00:00",
			ClassDate:   "2024-09-01",
			ClassID:     999,
		}, nil
	})
	scraper := attendance.NewScraper(source, nil, attendance.ScraperOptions{
		Options: attendance.Options{MinID: 1, MaxID: 40},
	}, &telemetry.Recorder{})

	var old []attendance.Form
	for _, id := range []int{1, 2, 120} {
		old = append(old, attendance.Form{
			TimetableID: id,
			StartTime:   "08:00:00",
			EndTime:     "10:00:00",
			ClassDate:   "2024-03-01",
			ClassID:     500,
		})
	}
	ctx := context.Background()
	require.NoError(t, scraper.Cache().PutMany(ctx, old))

	c := &courses.Courses{}
	c.AddSubject(10, "ECE2056", "DATA COMMUNICATIONS", 7).AddClass(500, "EC01", true)

	n := &fakeNotifier{}
	w := &watcher{
		scraper:  scraper,
		courses:  c,
		clock:    chrono.FixedImpl{At: time.Date(2024, 3, 1, 9, 0, 0, 0, chrono.PortalLocation)},
		baseURL:  portal.DefaultBaseURL,
		notifier: n,
		seen:     map[int]struct{}{},
	}

	w.invalidate(ctx)
	require.Zero(t, scraper.Cache().Len())
	require.Empty(t, w.run(ctx))

	w.refresh(ctx)
	require.Equal(t, 20, scraper.Cache().Len())
	for _, form := range scraper.Cache().Forms() {
		require.Equal(t, 999, form.ClassID)
	}
}

func TestSubjectFilter(t *testing.T) {
	c := &courses.Courses{}
	c.AddSubject(10, "ECE2056", "DATA COMMUNICATIONS", 7)
	c.AddSubject(11, "MPU3123", "TITAS", 8)

	keep, err := subjectFilter(c, "data comunications")
	require.NoError(t, err)
	require.True(t, keep(attendance.DetailedForm{SubjectID: 10}))
	require.False(t, keep(attendance.DetailedForm{SubjectID: 11}))

	keep, err = subjectFilter(c, "")
	require.NoError(t, err)
	require.True(t, keep(attendance.DetailedForm{SubjectID: 11}))

	_, err = subjectFilter(c, "zzzzzzzz")
	require.Error(t, err)
}
