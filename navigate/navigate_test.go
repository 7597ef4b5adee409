package navigate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tekriderz/sessionkit/account"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		role     account.Role
		intended string
		want     string
	}{
		{"tutor denied admin area", account.RoleTutor, "/admin/x", "/tutor"},
		{"admin allowed everywhere", account.RoleAdmin, "/tutor/x", "/tutor/x"},
		{"admin allowed learner area", account.RoleAdmin, "/learner/course/1", "/learner/course/1"},
		{"learner denied tutor area", account.RoleLearner, "/tutor/quiz", "/learner"},
		{"learner allowed own area", account.RoleLearner, "/learner/course/1", "/learner/course/1"},
		{"tutor allowed own area", account.RoleTutor, "/tutor/quiz/new", "/tutor/quiz/new"},
		{"shared path open to all", account.RoleLearner, "/settings", "/settings"},
		{"empty intended falls to default", account.RoleTutor, "", "/tutor"},
		{"admin default", account.RoleAdmin, "", "/admin"},
		{"learner default", account.RoleLearner, "", "/learner"},
		{"unknown role falls to dashboard", account.Role("ghost"), "", "/dashboard"},
		{"unknown role denied admin area", account.Role("ghost"), "/admin", "/dashboard"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Resolve(tt.role, tt.intended))
		})
	}
}

func TestIsAllowedPrefixBoundaries(t *testing.T) {
	// "/tutorials" is not inside the "/tutor" area.
	require.True(t, IsAllowed("/tutorials", account.RoleLearner))
	require.False(t, IsAllowed("/tutor", account.RoleLearner))
	require.False(t, IsAllowed("/admin/courses", account.RoleTutor))
	require.True(t, IsAllowed("/admin/courses", account.RoleAdmin))
}
