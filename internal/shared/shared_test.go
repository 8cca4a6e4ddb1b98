package shared

import (
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindsMatchSentinels(t *testing.T) {
	err := Conflict("User with username '%s' already exists", "a@x.com")
	require.ErrorIs(t, err, ErrConflict)
	require.NotErrorIs(t, err, ErrNotFound)
	require.EqualError(t, err, "User with username 'a@x.com' already exists")
	require.Equal(t, KindConflict, KindOf(err))

	wrapped := fmt.Errorf("users: create: %w", NotFound("User not found"))
	require.ErrorIs(t, wrapped, ErrNotFound)
	require.Equal(t, KindNotFound, KindOf(wrapped))

	require.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestWithCauseKeepsMessage(t *testing.T) {
	cause := errors.New("crypto failure")
	err := WithCause(Unauthorized("User or password incorrect"), cause)
	require.EqualError(t, err, "User or password incorrect")
	require.ErrorIs(t, err, cause)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Acme Corp":            "acme-corp",
		"  Café  Olé  ":        "cafe-ole",
		"System":               "system",
		"Foo -- Bar!!":         "foo-bar",
		"Ñandú & Compañía S.A": "nandu-compania-sa",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), in)
	}
}

var userRules = CriteriaRules{SortFields: []string{"createdAt", "username"}, FilterKeys: []string{"username"}}

func TestParseCriteriaDefaults(t *testing.T) {
	c, err := ParseCriteria(url.Values{}, userRules)
	require.NoError(t, err)
	require.Equal(t, 0, c.Offset)
	require.Equal(t, 10, c.Limit)
	require.Equal(t, "createdAt", c.SortBy)
	require.Equal(t, "desc", c.OrderBy)
	require.Empty(t, c.Filters)
}

func TestParseCriteriaFilters(t *testing.T) {
	c, err := ParseCriteria(url.Values{"username": {"[alice, bob]"}, "limit": {"500"}, "orderBy": {"ASC"}}, userRules)
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "bob"}, c.Filters["username"])
	require.Equal(t, 100, c.Limit)
	require.Equal(t, "asc", c.OrderBy)
}

func TestParseCriteriaRejectsUnknownKeys(t *testing.T) {
	_, err := ParseCriteria(url.Values{"sortBy": {"password"}}, userRules)
	require.EqualError(t, err, "Invalid sortBy field. Valid fields are: createdAt, username")

	_, err = ParseCriteria(url.Values{"orderBy": {"up"}}, userRules)
	require.EqualError(t, err, "Invalid orderBy value. Valid values are: asc, desc")

	_, err = ParseCriteria(url.Values{"email": {"x"}}, userRules)
	require.ErrorIs(t, err, ErrBadRequest)
	require.EqualError(t, err, "Invalid filter key: email. Valid keys are: username")
}

func TestNewPageLinks(t *testing.T) {
	c := NewCriteria()
	c.Offset = 10
	page := NewPage([]int{1, 2, 3}, c, 25)
	require.Equal(t, 3, page.TotalPages)
	require.NotNil(t, page.NextPage)
	require.Equal(t, 3, *page.NextPage)
	require.NotNil(t, page.PrevPage)
	require.Equal(t, 1, *page.PrevPage)

	empty := NewPage[int](nil, NewCriteria(), 0)
	require.NotNil(t, empty.Data)
	require.Nil(t, empty.NextPage)
	require.Nil(t, empty.PrevPage)
}
