package portal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"mmls-attendance/internal/assert"
	"mmls-attendance/internal/attendance"
	"mmls-attendance/internal/courses"
	"mmls-attendance/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
)

const (
	report_client_authenticate             = "client.authenticate"
	report_client_list_registered_subjects = "client.list-registered-subjects"
	report_client_is_enrolled              = "client.is-enrolled"
)

var (
	ErrInvalidCredentials = errors.New("invalid student id or password")
	ErrUnexpectedPage     = errors.New("unexpected page layout")
)

const notRegisteredBanner = "You are not register to this class."

// Session is a logged in portal session.
type Session struct {
	StudentID string
	// landing is the page shown right after logging in, it lists the registered subjects.
	landing []byte
}

func expectOK(res interface{ StatusCode() int }) error {
	if res.StatusCode() != http.StatusOK {
		return &attendance.ResponseError{Status: res.StatusCode()}
	}
	return nil
}

// Authenticate logs in, the session cookie is kept by the client.
func (c *Client) Authenticate(ctx context.Context, studentID, password string) (*Session, error) {
	loginError := func(err error) error {
		return fmt.Errorf("portal: login failed: %w", err)
	}

	res, err := c.Send(ctx, Request{Path: c.Paths.Login})
	if err != nil {
		return nil, loginError(err)
	}
	err = expectOK(res)
	if err != nil {
		c.tel.ReportBroken(report_client_authenticate, fmt.Errorf("login page: %w", err))
		return nil, loginError(err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, loginError(err)
	}
	token, ok := htmlutil.InputValue(doc, "_token")
	if !ok {
		c.tel.ReportBroken(report_client_authenticate, "login token not found")
		return nil, loginError(fmt.Errorf("%w: login token not found", ErrUnexpectedPage))
	}

	res, err = c.Send(ctx, Request{
		Method: http.MethodPost,
		Path:   c.Paths.CheckLogin,
		Form: map[string]string{
			"stud_id":    studentID,
			"stud_pswrd": password,
			"_token":     token,
		},
	})
	if err != nil {
		return nil, loginError(err)
	}
	if res.StatusCode() == http.StatusInternalServerError {
		return nil, ErrInvalidCredentials
	}
	err = expectOK(res)
	if err != nil {
		c.tel.ReportBroken(report_client_authenticate, fmt.Errorf("check login: %w", err))
		return nil, loginError(err)
	}

	c.tel.ReportDebug(report_client_authenticate+": logged in", studentID)
	return &Session{
		StudentID: studentID,
		landing:   res.Body(),
	}, nil
}

// parseSubjectLink reads the subject and coordinator id out of links like
// https://mmls.mmu.edu.my/1234:5678.
func parseSubjectLink(href string) (subjectID, coordinatorID int, err error) {
	parsed, err := url.Parse(href)
	if err != nil {
		return 0, 0, err
	}
	segments := strings.Split(path.Base(parsed.Path), ":")
	if len(segments) < 2 {
		return 0, 0, fmt.Errorf("%w: subject link %q", ErrUnexpectedPage, href)
	}
	subjectID, err = strconv.Atoi(segments[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: subject link %q", ErrUnexpectedPage, href)
	}
	coordinatorID, err = strconv.Atoi(segments[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: subject link %q", ErrUnexpectedPage, href)
	}
	return subjectID, coordinatorID, nil
}

// ParseSubjects reads the registered subjects off the landing page.
func ParseSubjects(landing []byte) (*courses.Courses, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(landing))
	if err != nil {
		return nil, err
	}

	out := &courses.Courses{}
	var parseErr error
	doc.Find("div.list-group[style='margin-top:-15px'] > span > a:first-of-type").Each(func(_ int, link *goquery.Selection) {
		if parseErr != nil {
			return
		}
		href, _ := link.Attr("href")
		subjectID, coordinatorID, err := parseSubjectLink(href)
		if err != nil {
			parseErr = err
			return
		}
		code, name, _ := strings.Cut(htmlutil.Normalize(link.Text()), " - ")
		out.AddSubject(subjectID, code, name, coordinatorID)
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return out, nil
}

// ParseClasses reads the classes of a subject off its student list page.
func ParseClasses(subject *courses.Subject, page []byte) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return err
	}
	var parseErr error
	doc.Find("select#select_class > option").Each(func(_ int, option *goquery.Selection) {
		value, _ := option.Attr("value")
		if parseErr != nil || value == "0" {
			return
		}
		id, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			parseErr = fmt.Errorf("%w: class id %q", ErrUnexpectedPage, value)
			return
		}
		subject.AddClass(id, htmlutil.Normalize(option.Text()), false)
	})
	return parseErr
}

// ListRegisteredSubjects returns the subjects of the logged in student with all of their classes.
func (c *Client) ListRegisteredSubjects(ctx context.Context, session *Session) (*courses.Courses, error) {
	out, err := ParseSubjects(session.landing)
	if err != nil {
		c.tel.ReportBroken(report_client_list_registered_subjects, err)
		return nil, err
	}
	out.StudentID = session.StudentID

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.MaxConnections)
	for _, subject := range out.Subjects {
		g.Go(func() error {
			res, err := c.Send(gctx, Request{
				Path: fmt.Sprintf(c.Paths.StudentList, subject.ID, subject.CoordinatorID),
			})
			if err != nil {
				return err
			}
			err = expectOK(res)
			if err != nil {
				return fmt.Errorf("classes of %s: %w", subject.Code, err)
			}
			return ParseClasses(subject, res.Body())
		})
	}
	err = g.Wait()
	if err != nil {
		c.tel.ReportBroken(report_client_list_registered_subjects, err)
		return nil, err
	}

	c.tel.ReportDebug(report_client_list_registered_subjects+": parsed", len(out.Subjects), len(out.Classes()))
	return out, nil
}

// IsEnrolled asks the attendance login whether the student is registered to a class.
func (c *Client) IsEnrolled(ctx context.Context, studentID string, classID int) (bool, error) {
	res, err := c.Send(ctx, Request{
		Method: http.MethodPost,
		Path:   c.Paths.AttendanceLogin,
		Form: map[string]string{
			"class_id":   strconv.Itoa(classID),
			"stud_id":    studentID,
			"stud_pswrd": "0",
		},
		Headers: map[string]string{
			"Referer": c.URL(fmt.Sprintf(c.Paths.Attendance, 1)),
		},
	})
	if err != nil {
		return false, err
	}
	err = expectOK(res)
	if err != nil {
		c.tel.ReportWarning(report_client_is_enrolled, classID, err)
		return false, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return false, err
	}
	for _, text := range htmlutil.NodeText(doc.Find("div.alert.alert-danger")) {
		if text == notRegisteredBanner {
			return false, nil
		}
	}
	return true, nil
}

func (c *Client) Logout(ctx context.Context) error {
	res, err := c.Send(ctx, Request{Path: c.Paths.Logout})
	if err != nil {
		return err
	}
	return expectOK(res)
}

// LoadOnline logs in, merges the registered subjects into c and logs out again.
func LoadOnline(ctx context.Context, client *Client, studentID, password string, c *courses.Courses) error {
	session, err := client.Authenticate(ctx, studentID, password)
	if err != nil {
		return err
	}
	loaded, err := client.ListRegisteredSubjects(ctx, session)
	if err != nil {
		return err
	}
	c.Update(loaded)
	c.StudentID = studentID
	return client.Logout(ctx)
}

// AutoSelect selects every class of c the student is enrolled in and returns the amount selected.
//
// Every check runs in a forked client, the attendance login replaces the session cookie.
func AutoSelect(ctx context.Context, client *Client, studentID string, c *courses.Courses) (int, error) {
	assert.NotEmptyStr(studentID)

	classes := c.Classes()
	enrolled := make([]bool, len(classes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(client.opts.MaxConnections)
	for i, class := range classes {
		g.Go(func() error {
			fork, err := client.Fork()
			if err != nil {
				return err
			}
			ok, err := fork.IsEnrolled(gctx, studentID, class.ID)
			enrolled[i] = ok
			return err
		})
	}
	err := g.Wait()
	if err != nil {
		return 0, err
	}

	selected := 0
	for i, class := range classes {
		if enrolled[i] {
			class.Selected = true
			selected++
		}
	}
	return selected, nil
}
