package permission

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToken(t *testing.T) {
	valid := []string{"employee.create", "leave_request.approve", "a1.b2"}
	for _, raw := range valid {
		tok, err := ParseToken(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, raw, tok.String())
	}

	invalid := []string{"", "employee", "Employee.create", "employee.create.all", ".create", "employee.", "employee create", "employee-x.read"}
	for _, raw := range invalid {
		_, err := ParseToken(raw)
		var verr *ValidationError
		assert.True(t, errors.As(err, &verr), "expected ValidationError for %q", raw)
	}
}

func TestTokenParts(t *testing.T) {
	tok, err := ParseToken("payroll.export")
	require.NoError(t, err)
	assert.Equal(t, "payroll", tok.Module())
	assert.Equal(t, "export", tok.Action())
}

func TestParseSet_DedupesAndSorts(t *testing.T) {
	set, err := ParseSet([]string{"b.read", "a.read", "b.read"})
	require.NoError(t, err)
	assert.Len(t, set, 2)
	assert.Equal(t, []string{"a.read", "b.read"}, set.Strings())
	assert.True(t, set.Has("a.read"))
	assert.False(t, set.Has("c.read"))
}

func TestParseSet_RejectsWholeSetOnOneBadToken(t *testing.T) {
	set, err := ParseSet([]string{"a.read", "BAD"})
	assert.Nil(t, set)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "BAD", verr.Value)
}

func TestSetStringsNeverNil(t *testing.T) {
	assert.NotNil(t, Set{}.Strings())
	assert.Empty(t, Set{}.Strings())
}

func TestRoleHelpers(t *testing.T) {
	assert.Equal(t, "super admin", NormalizeRole("  Super Admin "))
	assert.True(t, IsSuperAdmin("SUPER ADMIN"))
	assert.False(t, IsSuperAdmin("admin"))
	assert.True(t, IsFixedRole("HR"))
	assert.False(t, IsFixedRole("auditor"))
}

func TestValidatorPermTokenTag(t *testing.T) {
	type req struct {
		Permissions []string `validate:"dive,permtoken"`
	}
	v := NewValidator()

	assert.NoError(t, v.Struct(req{Permissions: []string{"employee.read"}}))

	err := FromValidatorError(v.Struct(req{Permissions: []string{"employee.read", "nope"}}))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "permissions", verr.Field)
	assert.Equal(t, "nope", verr.Value)
}
