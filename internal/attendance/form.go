package attendance

import (
	"fmt"
	"strings"
	"time"

	"mmls-attendance/internal/chrono"
	"mmls-attendance/internal/courses"
)

// Form holds the hidden fields of the attendance form of one timetable id.
type Form struct {
	TimetableID int
	StartTime   string
	EndTime     string
	// ClassDate is formatted as YYYY-MM-DD.
	ClassDate string
	ClassID   int
}

// Date parses ClassDate in the portal's timezone.
func (f Form) Date() (time.Time, error) {
	t, err := chrono.ParseDate(f.ClassDate)
	if err != nil {
		return time.Time{}, &ParseError{TimetableID: f.TimetableID, Field: "class_date", Err: err}
	}
	return t, nil
}

// DetailedForm is a Form of a selected class together with the
// class and subject it belongs to.
type DetailedForm struct {
	Form

	ClassCode     string
	SubjectID     int
	SubjectCode   string
	SubjectName   string
	CoordinatorID int
}

func NewDetailedForm(form Form, class *courses.Class, subject *courses.Subject) DetailedForm {
	detailed := DetailedForm{Form: form}
	if class != nil {
		detailed.ClassCode = class.Code
	}
	if subject != nil {
		detailed.SubjectID = subject.ID
		detailed.SubjectCode = subject.Code
		detailed.SubjectName = subject.Name
		detailed.CoordinatorID = subject.CoordinatorID
	}
	return detailed
}

// AttendancePath is the path of the attendance page, the portal accepts 0 for
// unknown subject and coordinator ids.
func AttendancePath(subjectID, coordinatorID, timetableID int) string {
	return fmt.Sprintf("/attendance:%d:%d:%d", subjectID, coordinatorID, timetableID)
}

func AttendanceListPath(subjectID, coordinatorID, timetableID, classID int) string {
	return fmt.Sprintf("/viewAttendance:%d:%d:%d:%d:1", subjectID, coordinatorID, timetableID, classID)
}

func (f DetailedForm) AttendanceURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + AttendancePath(f.SubjectID, f.CoordinatorID, f.TimetableID)
}

// AttendanceListURL returns the url of the list of students who signed the attendance,
// ok is false unless the subject, coordinator and class ids are all known.
func (f DetailedForm) AttendanceListURL(baseURL string) (url string, ok bool) {
	if f.SubjectID == 0 || f.CoordinatorID == 0 || f.ClassID == 0 {
		return "", false
	}
	return strings.TrimRight(baseURL, "/") +
		AttendanceListPath(f.SubjectID, f.CoordinatorID, f.TimetableID, f.ClassID), true
}

// classIndex maps selected class ids to the class and its subject.
type classIndex map[int]selectedClass

type selectedClass struct {
	class   *courses.Class
	subject *courses.Subject
}

func newClassIndex(c *courses.Courses) classIndex {
	index := classIndex{}
	if c == nil {
		return index
	}
	for _, class := range c.SelectedClasses() {
		index[class.ID] = selectedClass{
			class:   class,
			subject: c.SubjectByID(class.SubjectID),
		}
	}
	return index
}

func (i classIndex) detail(form Form) (DetailedForm, bool) {
	selected, ok := i[form.ClassID]
	if !ok {
		return DetailedForm{}, false
	}
	return NewDetailedForm(form, selected.class, selected.subject), true
}
