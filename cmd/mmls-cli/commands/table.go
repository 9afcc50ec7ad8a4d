package commands

import (
	"io"

	"mmls-attendance/internal/attendance"
	"mmls-attendance/internal/courses"

	"github.com/jedib0t/go-pretty/v6/table"
)

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(out)
	return t
}

func renderCourses(out io.Writer, c *courses.Courses) {
	t := newTable(out)
	t.AppendHeader(table.Row{"#", "Subject", "Name", "Class", "Selected"})
	for i, subject := range c.Subjects {
		if len(subject.Classes) == 0 {
			t.AppendRow(table.Row{i + 1, subject.Code, subject.Name, "", ""})
			continue
		}
		for j, class := range subject.Classes {
			selected := ""
			if class.Selected {
				selected = "*"
			}
			t.AppendRow(table.Row{
				i + 1,
				subject.Code,
				subject.Name,
				courses.ClassLabel(j) + ". " + class.Code,
				selected,
			})
		}
		t.AppendSeparator()
	}
	t.Render()
}

func renderForms(out io.Writer, forms []attendance.DetailedForm, baseURL string, withList bool) {
	t := newTable(out)
	header := table.Row{"Date", "Time", "Subject", "Class", "Attendance"}
	if withList {
		header = append(header, "Signed")
	}
	t.AppendHeader(header)
	for _, f := range forms {
		row := table.Row{
			f.ClassDate,
			f.StartTime + "-" + f.EndTime,
			f.SubjectCode,
			f.ClassCode,
			f.AttendanceURL(baseURL),
		}
		if withList {
			list, _ := f.AttendanceListURL(baseURL)
			row = append(row, list)
		}
		t.AppendRow(row)
	}
	t.Render()
}
