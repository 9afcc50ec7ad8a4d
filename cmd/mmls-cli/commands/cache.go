package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"mmls-attendance/internal/attendance"

	"github.com/spf13/cobra"
)

func init() {
	cacheCmd.AddCommand(cacheRefreshCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheCountCmd)
	cacheCmd.AddCommand(cacheExportCmd)
	cacheCmd.AddCommand(cacheImportCmd)
	rootCmd.AddCommand(cacheCmd)
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manages the cache of known attendance sessions.",
}

var cacheRefreshCmd = &cobra.Command{
	Use:   "refresh [<start-id> <end-id>]",
	Short: "Revalidates current sessions and fills the cache up to the newest timetable id.",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return fmt.Errorf("accepts 0 or 2 arg(s), received %d", len(args))
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		app := getApp(cmd)
		var rng *attendance.IDRange
		if len(args) == 2 {
			parsed, err := parseIDRange(args[0], args[1])
			if err != nil {
				return err
			}
			rng = &parsed
		}
		scraper, err := app.Scraper(cmd.Context())
		if err != nil {
			return err
		}

		t1 := time.Now()
		count, err := scraper.CacheRefresh(cmd.Context(), rng)
		if err != nil {
			return err
		}
		slog.Info("refreshed cache", "seconds", time.Since(t1).Seconds(), "entries", count)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Removes every cached session.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		scraper, err := getApp(cmd).Scraper(cmd.Context())
		if err != nil {
			return err
		}
		return scraper.Cache().Clear(cmd.Context())
	},
}

var cacheCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Prints the amount of cached sessions and the newest cached timetable id.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		scraper, err := getApp(cmd).Scraper(cmd.Context())
		if err != nil {
			return err
		}
		cache := scraper.Cache()
		maxID, _ := cache.MaxID()
		cmd.Printf("%d sessions cached, newest timetable id %d\n", cache.Len(), maxID)
		return nil
	},
}

var cacheExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Writes the cache as json to a file or stdout.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scraper, err := getApp(cmd).Scraper(cmd.Context())
		if err != nil {
			return err
		}
		data, err := json.Marshal(scraper.Cache())
		if err != nil {
			return err
		}
		if len(args) == 0 {
			_, err = cmd.OutOrStdout().Write(append(data, '\n'))
			return err
		}
		return os.WriteFile(args[0], data, 0600)
	},
}

var cacheImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Adds every session of a json export to the cache.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		scraper, err := getApp(cmd).Scraper(cmd.Context())
		if err != nil {
			return err
		}
		count, err := scraper.Cache().Import(cmd.Context(), data)
		if err != nil {
			return err
		}
		slog.Info("imported sessions", "count", count, "total", scraper.Cache().Len())
		return nil
	},
}
