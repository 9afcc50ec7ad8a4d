package portal

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"mmls-attendance/internal/attendance"
	"mmls-attendance/internal/chrono"
	"mmls-attendance/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// StatusNotGenerated is what the portal answers for a timetable id without a session.
const StatusNotGenerated = http.StatusInternalServerError

// ExtractForm parses the attendance page of a timetable id.
//
// A nil form and nil error means the id is a hole. Every other non-2xx status is a
// *attendance.ResponseError and a page missing one of the form fields is a
// *attendance.ParseError.
func ExtractForm(status int, body []byte, timetableID int) (*attendance.Form, error) {
	if status == StatusNotGenerated {
		return nil, nil
	}
	if status < 200 || status > 299 {
		return nil, &attendance.ResponseError{Status: status}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &attendance.ParseError{TimetableID: timetableID, Field: "document", Err: err}
	}

	values := map[string]string{}
	for _, name := range []string{"starttime", "endtime", "class_date", "class_id"} {
		value, ok := htmlutil.InputValue(doc, name)
		if !ok {
			return nil, &attendance.ParseError{TimetableID: timetableID, Field: name}
		}
		values[name] = strings.TrimSpace(value)
	}

	classID, err := strconv.Atoi(values["class_id"])
	if err != nil {
		return nil, &attendance.ParseError{TimetableID: timetableID, Field: "class_id", Err: err}
	}
	_, err = chrono.ParseDate(values["class_date"])
	if err != nil {
		return nil, &attendance.ParseError{
			TimetableID: timetableID,
			Field:       "class_date",
			Err:         fmt.Errorf("%q is not a date: %w", values["class_date"], err),
		}
	}

	return &attendance.Form{
		TimetableID: timetableID,
		StartTime:   values["starttime"],
		EndTime:     values["endtime"],
		ClassDate:   values["class_date"],
		ClassID:     classID,
	}, nil
}
