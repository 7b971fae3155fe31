package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserPasswordRoundTrip(t *testing.T) {
	u := &User{}
	require.NoError(t, u.SetPassword("s3cret-pass"))
	require.NotEmpty(t, u.PasswordHash)

	assert.True(t, u.CheckPassword("s3cret-pass"))
	assert.False(t, u.CheckPassword("wrong"))
}

func TestUserHasActiveTrial(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	future := now.Add(5 * 24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	u := &User{TrialActivated: true, TrialEndDate: &future}
	assert.True(t, u.HasActiveTrial(now))

	u = &User{TrialActivated: true, TrialEndDate: &past}
	assert.False(t, u.HasActiveTrial(now), "expired trial")

	u = &User{TrialActivated: false, TrialEndDate: &future}
	assert.False(t, u.HasActiveTrial(now), "never activated")

	u = &User{TrialActivated: true, TrialCancelled: true, TrialEndDate: &future}
	assert.False(t, u.HasActiveTrial(now), "cancelled trial")

	u = &User{TrialActivated: true}
	assert.False(t, u.HasActiveTrial(now), "missing end date")
}
