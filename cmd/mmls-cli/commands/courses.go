package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"mmls-attendance/internal/courses"
	"mmls-attendance/internal/portal"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(autoselectCmd)
	rootCmd.AddCommand(printCmd)
	rootCmd.AddCommand(selectionCmd("select", courses.OpSelect))
	rootCmd.AddCommand(selectionCmd("deselect", courses.OpDeselect))
	rootCmd.AddCommand(selectionCmd("toggle", courses.OpToggle))
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Logs in and saves the registered subjects with all of their classes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := getApp(cmd)
		studentID, err := app.StudentID()
		if err != nil {
			return err
		}
		if app.Config.Password == "" {
			return errors.New("no password, set password in the config or MMLS_PASSWORD")
		}
		client, err := app.Client()
		if err != nil {
			return err
		}

		err = portal.LoadOnline(cmd.Context(), client, studentID, app.Config.Password, app.Courses)
		if err != nil {
			return err
		}
		err = app.SaveCourses()
		if err != nil {
			return err
		}
		slog.Info("saved subjects", "subjects", len(app.Courses.Subjects), "file", app.Config.CoursesFile)
		renderCourses(cmd.OutOrStdout(), app.Courses)
		return nil
	},
}

var autoselectCmd = &cobra.Command{
	Use:   "autoselect",
	Short: "Selects every saved class the student is enrolled in.",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := getApp(cmd)
		studentID, err := app.StudentID()
		if err != nil {
			return err
		}
		if len(app.Courses.Subjects) == 0 {
			return errors.New("no subjects saved, run login first")
		}
		client, err := app.Client()
		if err != nil {
			return err
		}

		selected, err := portal.AutoSelect(cmd.Context(), client, studentID, app.Courses)
		if err != nil {
			return err
		}
		err = app.SaveCourses()
		if err != nil {
			return err
		}
		slog.Info("selected enrolled classes", "count", selected)
		renderCourses(cmd.OutOrStdout(), app.Courses)
		return nil
	},
}

var printCmd = &cobra.Command{
	Use:   "print",
	Short: "Prints the saved subjects and classes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		renderCourses(cmd.OutOrStdout(), getApp(cmd).Courses)
		return nil
	},
}

func selectionCmd(name string, op courses.Op) *cobra.Command {
	return &cobra.Command{
		Use:     fmt.Sprintf("%s <all | 1ab 2 3c ...>", name),
		Short:   fmt.Sprintf("%ss classes by the indices shown by print.", strings.ToUpper(name[:1])+name[1:]),
		Example: fmt.Sprintf("  mmls-cli %s 1a 2 3bc", name),
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp(cmd)
			sel, err := courses.ParseSelection(strings.Join(args, " "))
			if err != nil {
				return err
			}
			changed := app.Courses.Apply(op, sel)
			err = app.SaveCourses()
			if err != nil {
				return err
			}
			slog.Info("updated selection", "op", op.String(), "classes", changed)
			renderCourses(cmd.OutOrStdout(), app.Courses)
			return nil
		},
	}
}
