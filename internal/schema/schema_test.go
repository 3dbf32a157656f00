package schema

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateProgressAcceptsDocument(t *testing.T) {
	raw := []byte(`{
		"userId": "u1",
		"updatedAt": "2026-10-14T09:00:00Z",
		"modules": [{
			"moduleId": "m1",
			"status": "passed",
			"lessonsRead": ["l1"],
			"quiz": {
				"attempts": [{
					"attemptId": "attempt_1",
					"submittedAt": "2026-10-14T09:00:00.123456Z",
					"scorePercent": 75,
					"answers": [{"questionId": "q1", "selectedOptionIds": ["o1"], "correctOptionIds": ["o1"], "isCorrect": true}]
				}],
				"bestScorePercent": 75,
				"passedAt": "2026-10-14T09:00:00Z"
			},
			"assignment": {"submitted": true, "status": "GRADED", "grade": 4}
		}]
	}`)
	require.NoError(t, ValidateProgress(raw))
}

func TestValidateProgressRejectsBadDocuments(t *testing.T) {
	cases := map[string]string{
		"missing user":   `{"updatedAt":"2026-10-14T09:00:00Z","modules":[]}`,
		"unknown status": `{"userId":"u1","updatedAt":"2026-10-14T09:00:00Z","modules":[{"moduleId":"m1","status":"open"}]}`,
		"score too high": `{"userId":"u1","updatedAt":"2026-10-14T09:00:00Z","modules":[{"moduleId":"m1","status":"available","quiz":{"bestScorePercent":101}}]}`,
		"bad timestamp":  `{"userId":"u1","updatedAt":"yesterday","modules":[]}`,
		"grade too high": `{"userId":"u1","updatedAt":"2026-10-14T09:00:00Z","modules":[{"moduleId":"m1","status":"available","assignment":{"grade":6}}]}`,
		"not json":       `{"userId":`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			err := ValidateProgress([]byte(raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.NotValid), "got %v", err)
		})
	}
}
