package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	all := []Status{StatusOpen, StatusInReview, StatusResolved}
	allowed := map[[2]Status]bool{
		{StatusOpen, StatusInReview}:     true,
		{StatusOpen, StatusResolved}:     true,
		{StatusInReview, StatusResolved}: true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.False(t, CanTransition("bogus", StatusResolved))
}

func TestParseTargetType(t *testing.T) {
	tt, ok := ParseTargetType(" Field ")
	assert.True(t, ok)
	assert.Equal(t, TargetField, tt)
	assert.True(t, tt.RequiresTarget())

	tt, ok = ParseTargetType("REFUND")
	assert.True(t, ok)
	assert.False(t, tt.RequiresTarget())

	_, ok = ParseTargetType("weather")
	assert.False(t, ok)
}

func TestParseStatus(t *testing.T) {
	_, ok := ParseStatus("in_review")
	assert.True(t, ok)
	_, ok = ParseStatus("IN_REVIEW")
	assert.False(t, ok)
	assert.Equal(t, "00000000-0000-0000-0000-000000000000", NoTarget)
}
