package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuizRatingDelta(t *testing.T) {
	assert.Equal(t, 75, QuizRatingDelta(75, 0))
	assert.Equal(t, 25, QuizRatingDelta(100, 75))
	assert.Equal(t, 0, QuizRatingDelta(50, 70))
	assert.Equal(t, 0, QuizRatingDelta(70, 70))
}

func TestGradeRatingDelta(t *testing.T) {
	assert.Equal(t, 100, GradeRatingDelta(5, nil))
	assert.Equal(t, -40, GradeRatingDelta(3, pct(5)))
	assert.Equal(t, 0, GradeRatingDelta(4, pct(4)))
	assert.Equal(t, 0, GradeRatingDelta(0, nil))
}
