package suite

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSuite() *Suite {
	return New("",
		New("rig.test_joints",
			New("JointTest",
				NewCase(Test{Module: "rig.test_joints", Class: "JointTest", Method: "test_orient"}),
				NewCase(Test{Module: "rig.test_joints", Class: "JointTest", Method: "test_mirror"}),
			),
		),
		NewImportFailure("rig.test_broken", errors.New("SyntaxError")),
	)
}

func TestIdentity_Parts(t *testing.T) {
	tests := []struct {
		name    string
		input   Identity
		want    []string
		wantErr bool
	}{
		{"module class method", "pkg.mod.Case.test_x", []string{"pkg", "mod", "Case", "test_x"}, false},
		{"single module", "test_mod", []string{"test_mod"}, false},
		{"empty", "", nil, true},
		{"blank", "   ", nil, true},
		{"empty segment", "pkg..Case", nil, true},
		{"trailing dot", "pkg.Case.", nil, true},
		{"leading digit", "pkg.1Case", nil, true},
		{"path separator", "pkg/mod.Case", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts, err := tt.input.Parts()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedIdentity)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, parts)
		})
	}
}

func TestIdentity_Helpers(t *testing.T) {
	id := NewIdentity("pkg.mod", "", "Case", "test_x")
	assert.Equal(t, Identity("pkg.mod.Case.test_x"), id)
	assert.Equal(t, "test_x", id.Last())
	assert.True(t, id.HasPrefix("pkg.mod"))
	assert.True(t, id.HasPrefix(id))
	assert.False(t, id.HasPrefix("pkg.mo"))
}

func TestAggregate_Precedence(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		expected Status
	}{
		{"no children", nil, StatusNotRun},
		{"success and skipped", []Status{StatusSuccess, StatusSkipped}, StatusSuccess},
		{"skipped then success", []Status{StatusSkipped, StatusSuccess}, StatusSuccess},
		{"success and fail", []Status{StatusSuccess, StatusFail}, StatusFail},
		{"fail then success keeps fail", []Status{StatusFail, StatusSuccess}, StatusFail},
		{"fail and error", []Status{StatusFail, StatusError}, StatusError},
		{"error first", []Status{StatusError, StatusSuccess}, StatusError},
		{"skipped and not run", []Status{StatusNotRun, StatusSkipped}, StatusSkipped},
		{"success and not run", []Status{StatusNotRun, StatusSuccess, StatusNotRun}, StatusSuccess},
		{"all not run", []Status{StatusNotRun, StatusNotRun}, StatusNotRun},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Aggregate(tt.statuses))
		})
	}
}

func TestParseStatus(t *testing.T) {
	for s, name := range statusNames {
		parsed, err := ParseStatus(name)
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := ParseStatus("exploded")
	assert.Error(t, err)
}

func TestSuite_CountAndIdentities(t *testing.T) {
	s := sampleSuite()

	assert.Equal(t, 3, s.Count())
	assert.Equal(t, []Identity{
		"rig.test_joints.JointTest.test_orient",
		"rig.test_joints.JointTest.test_mirror",
		"rig.test_broken",
	}, s.Identities())
	assert.Equal(t, "test_orient", s.FirstLeaf().Name)
}

func TestSuite_AddIgnoresLeavesAndNil(t *testing.T) {
	c := NewCase(Test{Module: "m", Class: "C", Method: "test_a"})
	c.Add(New("x"))
	assert.Empty(t, c.Children)

	s := New("root", nil)
	assert.Empty(t, s.Children)
	assert.Nil(t, s.FirstLeaf())
	assert.Equal(t, 0, s.Count())
}

func TestSuite_Filter(t *testing.T) {
	s := sampleSuite()

	only := s.Filter(func(e *Suite) bool { return e.ID() == "rig.test_joints.JointTest.test_mirror" })
	require.NotNil(t, only)
	assert.Equal(t, []Identity{"rig.test_joints.JointTest.test_mirror"}, only.Identities())
	// The original is untouched
	assert.Equal(t, 3, s.Count())

	assert.Nil(t, s.Filter(func(*Suite) bool { return false }))
}
