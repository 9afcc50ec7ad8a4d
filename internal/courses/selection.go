package courses

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var ErrInvalidSelection = errors.New("invalid selection")

type Op int

const (
	OpSelect Op = iota
	OpDeselect
	OpToggle
)

func (o Op) String() string {
	switch o {
	case OpSelect:
		return "select"
	case OpDeselect:
		return "deselect"
	case OpToggle:
		return "toggle"
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Target addresses classes of one subject by their display position.
// Subject and Classes are 0-based, a nil Classes means every class of the subject.
type Target struct {
	Subject int
	Classes []int
}

type Selection struct {
	All     bool
	Targets []Target
}

// ParseSelection parses arguments like "1ab 2 3c" (1-based subject index followed by
// class letters) or "all". Any field not of that shape is rejected, indices past the
// end of the courses are not.
func ParseSelection(args string) (Selection, error) {
	fields := strings.Fields(strings.ToLower(args))
	if len(fields) == 0 {
		return Selection{}, fmt.Errorf("%w: nothing to select", ErrInvalidSelection)
	}
	if fields[0] == "all" {
		return Selection{All: true}, nil
	}

	targets := make([]Target, 0, len(fields))
	for _, field := range fields {
		target, err := parseTarget(field)
		if err != nil {
			return Selection{}, err
		}
		targets = append(targets, target)
	}
	return Selection{Targets: targets}, nil
}

func parseTarget(field string) (Target, error) {
	digits := strings.IndexFunc(field, func(r rune) bool {
		return !unicode.IsDigit(r)
	})
	if digits < 0 {
		digits = len(field)
	}
	subject, err := strconv.Atoi(field[:digits])
	if err != nil || subject < 1 {
		return Target{}, fmt.Errorf("%w: %q has no subject number", ErrInvalidSelection, field)
	}

	target := Target{Subject: subject - 1}
	seen := map[int]bool{}
	for _, r := range field[digits:] {
		if r < 'a' || r > 'z' {
			return Target{}, fmt.Errorf("%w: %q is not a class letter", ErrInvalidSelection, r)
		}
		class := int(r - 'a')
		if seen[class] {
			continue
		}
		seen[class] = true
		target.Classes = append(target.Classes, class)
	}
	return target, nil
}

// ClassLabel is the letter a class is addressed with in a selection.
func ClassLabel(index int) string {
	return string(rune('a' + index))
}

func apply(op Op, class *Class) {
	switch op {
	case OpSelect:
		class.Selected = true
	case OpDeselect:
		class.Selected = false
	case OpToggle:
		class.Selected = !class.Selected
	}
}

// Apply performs op on every class addressed by sel. Indices that do not exist are ignored.
// It returns the amount of classes that were touched.
func (c *Courses) Apply(op Op, sel Selection) int {
	touched := 0
	if sel.All {
		for _, class := range c.Classes() {
			apply(op, class)
			touched++
		}
		return touched
	}

	for _, target := range sel.Targets {
		if target.Subject < 0 || target.Subject >= len(c.Subjects) {
			continue
		}
		subject := c.Subjects[target.Subject]
		if target.Classes == nil {
			for _, class := range subject.Classes {
				apply(op, class)
				touched++
			}
			continue
		}
		for _, idx := range target.Classes {
			if idx < 0 || idx >= len(subject.Classes) {
				continue
			}
			apply(op, subject.Classes[idx])
			touched++
		}
	}
	return touched
}
