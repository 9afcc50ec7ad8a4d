package courses

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func fixture() *Courses {
	c := &Courses{StudentID: "1211100000"}
	math := c.AddSubject(10, "MPU3123", "TITAS", 7)
	math.AddClass(500, "TC1L", false)
	math.AddClass(501, "TC2L", false)
	physics := c.AddSubject(11, "ECE2056", "DATA COMMUNICATIONS", 8)
	physics.AddClass(600, "EC01", false)
	physics.AddClass(601, "ECA2", false)
	physics.AddClass(602, "ECA3", false)
	return c
}

func selectedIDs(c *Courses) []int {
	var out []int
	for _, class := range c.SelectedClasses() {
		out = append(out, class.ID)
	}
	return out
}

func TestAddSubjectReplaces(t *testing.T) {
	c := fixture()
	c.AddSubject(10, "MPU3123", "TITAS (NEW)", 9)

	require.Len(t, c.Subjects, 2)
	require.Equal(t, "TITAS (NEW)", c.Subjects[0].Name)
	require.Empty(t, c.Subjects[0].Classes, "replacing a subject must not merge its classes")
	require.Nil(t, c.ClassByID(500))
}

func TestAddClassReplaces(t *testing.T) {
	c := fixture()
	s := c.SubjectByID(10)
	s.Classes[0].Selected = true
	s.AddClass(500, "TC9L", false)

	require.Len(t, s.Classes, 2)
	require.Equal(t, "TC9L", s.Classes[0].Code)
	require.False(t, s.Classes[0].Selected)
	require.Equal(t, 10, c.ClassByID(500).SubjectID)
}

func TestUpdateMergePolicy(t *testing.T) {
	c := fixture()
	c.Subjects[0].Classes[0].Selected = true

	incoming := &Courses{}
	replaced := incoming.AddSubject(10, "MPU3123", "TITAS", 7)
	replaced.AddClass(502, "TC3L", true)
	incoming.AddSubject(12, "LAE1113", "ACADEMIC ENGLISH", 3)

	c.Update(incoming)

	var codes []string
	for _, s := range c.Subjects {
		codes = append(codes, s.Code)
	}
	require.Equal(t, []string{"MPU3123", "ECE2056", "LAE1113"}, codes)
	require.Nil(t, c.ClassByID(500))
	require.Equal(t, []int{502}, selectedIDs(c))

	// the merged subjects must not alias the incoming ones
	incoming.Subjects[0].Classes[0].Selected = false
	require.Equal(t, []int{502}, selectedIDs(c))
}

func TestClassByIDPrefersFirstSubject(t *testing.T) {
	c := &Courses{}
	first := c.AddSubject(10, "ECE2056", "DATA COMMUNICATIONS", 7).AddClass(500, "EC01", false)
	c.AddSubject(11, "MPU3123", "TITAS", 8).AddClass(500, "TT01", true)

	require.Same(t, first, c.ClassByID(500))
	require.Len(t, c.Classes(), 2)
	require.Nil(t, c.ClassByID(501))
}

func TestParseSelection(t *testing.T) {
	testCases := []struct {
		args     string
		expected Selection
		err      bool
	}{
		{args: "all", expected: Selection{All: true}},
		{args: "ALL 1a", expected: Selection{All: true}},
		{
			args: "1ab 2 3c",
			expected: Selection{Targets: []Target{
				{Subject: 0, Classes: []int{0, 1}},
				{Subject: 1},
				{Subject: 2, Classes: []int{2}},
			}},
		},
		{
			args: "12aa",
			expected: Selection{Targets: []Target{
				{Subject: 11, Classes: []int{0}},
			}},
		},
		{args: "", err: true},
		{args: "abc 0", err: true},
		{args: "1a x", err: true},
		{args: "1a 0", err: true},
		{args: "1a 2-b", err: true},
	}

	for _, test := range testCases {
		sel, err := ParseSelection(test.args)
		if test.err {
			require.ErrorIs(t, err, ErrInvalidSelection, test.args)
			continue
		}
		require.NoError(t, err, test.args)
		diff := cmp.Diff(test.expected, sel)
		if diff != "" {
			t.Fatal(test.args, diff)
		}
	}
}

func TestApply(t *testing.T) {
	c := fixture()

	sel, err := ParseSelection("1a 2bc 9z 1z")
	require.NoError(t, err)
	require.Equal(t, 3, c.Apply(OpSelect, sel))
	require.Equal(t, []int{500, 601, 602}, selectedIDs(c))

	sel, err = ParseSelection("2")
	require.NoError(t, err)
	c.Apply(OpToggle, sel)
	require.Equal(t, []int{500, 600}, selectedIDs(c))

	sel, err = ParseSelection("all")
	require.NoError(t, err)
	c.Apply(OpDeselect, sel)
	require.Empty(t, selectedIDs(c))

	c.Apply(OpToggle, sel)
	require.Len(t, selectedIDs(c), 5)
}

func TestJSONRoundTripKeepsBackReferences(t *testing.T) {
	c := fixture()
	c.Subjects[1].Classes[2].Selected = true

	data, err := json.Marshal(c)
	require.NoError(t, err)
	require.Contains(t, string(data), `"student_id":"1211100000"`)

	loaded := &Courses{}
	require.NoError(t, json.Unmarshal(data, loaded))
	require.Equal(t, "1211100000", loaded.StudentID)
	require.Equal(t, []int{602}, selectedIDs(loaded))
	require.Equal(t, 11, loaded.ClassByID(602).SubjectID)
}

func TestLoadSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "courses.json")

	empty, err := Load(path)
	require.NoError(t, err)
	require.Empty(t, empty.Subjects)

	require.NoError(t, Save(path, fixture()))
	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded.Classes(), 5)
}

func TestFindSubject(t *testing.T) {
	c := fixture()

	require.Equal(t, 11, c.FindSubject("ece2056").ID)
	require.Equal(t, 11, c.FindSubject(" ECE 2056").ID)
	require.Equal(t, 11, c.FindSubject("data comunications").ID)
	require.Equal(t, 10, c.FindSubject("MPU3132").ID)
	require.Nil(t, c.FindSubject(""))
	require.Nil(t, c.FindSubject("zzzzzzzz"))
}
