package credstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecord_Valid(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, (*Record)(nil).Valid(now))
	assert.False(t, (&Record{}).Valid(now))

	// No expiry reported — token counts as usable.
	assert.True(t, (&Record{AccessToken: "tok"}).Valid(now))

	assert.True(t, (&Record{AccessToken: "tok", Expiry: now.Add(time.Hour)}).Valid(now))
	assert.False(t, (&Record{AccessToken: "tok", Expiry: now.Add(-time.Minute)}).Valid(now))
}
