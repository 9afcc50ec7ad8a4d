package commands

import (
	"errors"
	"os"
	"time"

	"mmls-attendance/internal/attendance"
	"mmls-attendance/internal/notify"
	"mmls-attendance/internal/portal"
	"mmls-attendance/lib/configuration"
	"mmls-attendance/lib/configutil"

	"github.com/adrg/xdg"
)

const dataDir = "mmls-attendance"

type WatchConfig struct {
	// Schedule is a cron spec in Malaysian time.
	Schedule string `json:"schedule"`
	// RefreshSchedule is when the whole cache is refreshed against the portal.
	RefreshSchedule string `json:"refresh_schedule"`

	DaysAhead int      `json:"days_ahead"`
	Notify    bool     `json:"notify"`
	NotifyTo  []string `json:"notify_to"`
	// PerfStatsSeconds is the interval of process stat gauges, 0 disables them.
	PerfStatsSeconds int `json:"perf_stats_seconds"`
}

type Config struct {
	StudentID string `json:"student_id"`
	Password  string `json:"password"`

	BaseURL          string `json:"base_url"`
	CloudflareBypass bool   `json:"cloudflare_bypass"`
	MaxConnections   int    `json:"max_connections"`
	TimeoutSeconds   int    `json:"timeout_seconds"`
	Attempts         int    `json:"attempts"`
	BackoffSeconds   int    `json:"backoff_seconds"`

	QueueSize             int `json:"queue_size"`
	MaxContiguousHoles    int `json:"max_contiguous_holes"`
	MaxContiguousUnsorted int `json:"max_contiguous_unsorted"`
	MinTimetableID        int `json:"min_timetable_id"`
	MaxTimetableID        int `json:"max_timetable_id"`

	CoursesFile string               `json:"courses_file"`
	Cache       configuration.Libsql `json:"cache"`
	Smtp        notify.SmtpConfig    `json:"smtp"`
	Watch       WatchConfig          `json:"watch"`
}

// LoadConfig reads path (a missing file is fine), applies the environment and
// fills the defaults.
func LoadConfig(path string) (Config, error) {
	cfg, err := configutil.ReadConfig[Config](path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}

	cfg.StudentID = configutil.Env("MMLS_STUDENT_ID", cfg.StudentID)
	cfg.Password = configutil.Env("MMLS_PASSWORD", cfg.Password)
	cfg.Smtp.Password = configutil.Env("MMLS_SMTP_PASSWORD", cfg.Smtp.Password)
	cfg.Cache.AuthToken = configutil.Env("MMLS_CACHE_AUTH_TOKEN", cfg.Cache.AuthToken)

	if cfg.BaseURL == "" {
		cfg.BaseURL = portal.DefaultBaseURL
	}
	if cfg.CoursesFile == "" {
		cfg.CoursesFile, err = xdg.DataFile(dataDir + "/courses.json")
		if err != nil {
			return Config{}, err
		}
	}
	if cfg.Cache.Target() == "" {
		cfg.Cache.File, err = xdg.DataFile(dataDir + "/attendance.db")
		if err != nil {
			return Config{}, err
		}
	}
	if cfg.Watch.Schedule == "" {
		cfg.Watch.Schedule = "*/15 7-22 * * *"
	}
	if cfg.Watch.RefreshSchedule == "" {
		cfg.Watch.RefreshSchedule = "0 */4 * * *"
	}
	if cfg.Watch.DaysAhead < 0 {
		cfg.Watch.DaysAhead = 0
	}
	return cfg, nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func (c Config) PortalOptions() portal.Options {
	return portal.Options{
		BaseURL:          c.BaseURL,
		MaxConnections:   c.MaxConnections,
		Timeout:          seconds(c.TimeoutSeconds),
		Attempts:         c.Attempts,
		Backoff:          seconds(c.BackoffSeconds),
		CloudflareBypass: c.CloudflareBypass,
		TracerName:       "mmls-cli.portal",
	}
}

func (c Config) AttendanceOptions() attendance.Options {
	return attendance.Options{
		MaxConnections:        c.MaxConnections,
		QueueSize:             c.QueueSize,
		MaxContiguousHoles:    c.MaxContiguousHoles,
		MaxContiguousUnsorted: c.MaxContiguousUnsorted,
		MinID:                 c.MinTimetableID,
		MaxID:                 c.MaxTimetableID,
	}.WithDefaults()
}
