package courses

import (
	"fmt"
)

// Class is one section of a Subject a student can be enrolled in.
//
// SubjectID refers back to the owning subject, it is only used for lookup.
type Class struct {
	ID        int    `json:"id"`
	Code      string `json:"code"`
	Selected  bool   `json:"selected"`
	SubjectID int    `json:"-"`
}

type Subject struct {
	ID            int      `json:"id"`
	Code          string   `json:"code"`
	Name          string   `json:"name"`
	CoordinatorID int      `json:"coordinator_id"`
	Classes       []*Class `json:"classes"`
}

func (s *Subject) String() string {
	return fmt.Sprintf("%s - %s", s.Code, s.Name)
}

// AddClass adds a class to the subject, a class with the same id is replaced entirely.
func (s *Subject) AddClass(id int, code string, selected bool) *Class {
	class := &Class{
		ID:        id,
		Code:      code,
		Selected:  selected,
		SubjectID: s.ID,
	}
	for i, existing := range s.Classes {
		if existing.ID == id {
			s.Classes[i] = class
			return class
		}
	}
	s.Classes = append(s.Classes, class)
	return class
}

func (s *Subject) SelectedClasses() []*Class {
	var out []*Class
	for _, c := range s.Classes {
		if c.Selected {
			out = append(out, c)
		}
	}
	return out
}

// Courses is the subject -> class hierarchy of a single student.
//
// Courses owns its subjects which own their classes. Subject ids are unique within
// one Courses and class ids within one subject.
type Courses struct {
	StudentID string
	Subjects  []*Subject
}

// AddSubject adds a subject, a subject with the same id is replaced entirely (including its classes).
func (c *Courses) AddSubject(id int, code, name string, coordinatorID int) *Subject {
	subject := &Subject{
		ID:            id,
		Code:          code,
		Name:          name,
		CoordinatorID: coordinatorID,
	}
	for i, existing := range c.Subjects {
		if existing.ID == id {
			c.Subjects[i] = subject
			return subject
		}
	}
	c.Subjects = append(c.Subjects, subject)
	return subject
}

// Update merges the subjects of other into c.
//
// Subjects with a matching id are replaced in place, subjects only present in other
// are appended and subjects only present in c are kept.
func (c *Courses) Update(other *Courses) {
	if other == nil {
		return
	}
	for _, incoming := range other.Subjects {
		subject := incoming.clone()
		replaced := false
		for i, existing := range c.Subjects {
			if existing.ID == subject.ID {
				c.Subjects[i] = subject
				replaced = true
				break
			}
		}
		if !replaced {
			c.Subjects = append(c.Subjects, subject)
		}
	}
}

func (s *Subject) clone() *Subject {
	out := &Subject{
		ID:            s.ID,
		Code:          s.Code,
		Name:          s.Name,
		CoordinatorID: s.CoordinatorID,
		Classes:       make([]*Class, 0, len(s.Classes)),
	}
	for _, class := range s.Classes {
		out.AddClass(class.ID, class.Code, class.Selected)
	}
	return out
}

func (c *Courses) SubjectByID(id int) *Subject {
	for _, s := range c.Subjects {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// ClassByID returns the first class with id in display order.
func (c *Courses) ClassByID(id int) *Class {
	for _, s := range c.Subjects {
		for _, class := range s.Classes {
			if class.ID == id {
				return class
			}
		}
	}
	return nil
}

// Classes returns every class of every subject in display order.
func (c *Courses) Classes() []*Class {
	var out []*Class
	for _, s := range c.Subjects {
		out = append(out, s.Classes...)
	}
	return out
}

func (c *Courses) SelectedClasses() []*Class {
	var out []*Class
	for _, s := range c.Subjects {
		out = append(out, s.SelectedClasses()...)
	}
	return out
}
