package courses

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

type coursesJSON struct {
	StudentID string     `json:"student_id,omitempty"`
	Subjects  []*Subject `json:"subjects"`
}

func (c *Courses) MarshalJSON() ([]byte, error) {
	subjects := c.Subjects
	if subjects == nil {
		subjects = []*Subject{}
	}
	return json.Marshal(coursesJSON{
		StudentID: c.StudentID,
		Subjects:  subjects,
	})
}

// UnmarshalJSON replaces the contents of c, it goes through AddSubject and AddClass so
// duplicated ids collapse the same way they would when built by hand.
func (c *Courses) UnmarshalJSON(data []byte) error {
	var raw coursesJSON
	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}

	loaded := Courses{StudentID: raw.StudentID}
	for _, s := range raw.Subjects {
		if s == nil {
			continue
		}
		subject := loaded.AddSubject(s.ID, s.Code, s.Name, s.CoordinatorID)
		for _, class := range s.Classes {
			if class == nil {
				continue
			}
			subject.AddClass(class.ID, class.Code, class.Selected)
		}
	}
	*c = loaded
	return nil
}

// Load reads courses saved with Save, a missing file yields empty courses.
func Load(path string) (*Courses, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Courses{}, nil
	}
	if err != nil {
		return nil, err
	}
	c := &Courses{}
	err = json.Unmarshal(data, c)
	if err != nil {
		return nil, fmt.Errorf("parse courses %s: %w", path, err)
	}
	return c, nil
}

func Save(path string, c *Courses) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	err = os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
