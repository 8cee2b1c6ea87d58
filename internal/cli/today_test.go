package cli

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldsync/internal/model"
)

func fixtureView() model.TodayView {
	return model.TodayView{
		UserID: "user-1",
		Day:    "2025-03-10",
		Entries: []model.AttendanceEntry{
			{
				ID:           "rec-2",
				UserID:       "user-1",
				Day:          "2025-03-10",
				Kind:         model.EventClockOut,
				EventTime:    time.Date(2025, 3, 10, 17, 31, 0, 0, time.UTC),
				Inconsistent: true,
				Note:         "duplicate clock-out",
				Synced:       false,
			},
			{
				ID:        "rec-1",
				UserID:    "user-1",
				Day:       "2025-03-10",
				Kind:      model.EventClockIn,
				EventTime: time.Date(2025, 3, 10, 8, 2, 0, 0, time.UTC),
				Zone:      &model.ZoneResult{Name: "Z1", Code: "Z-001"},
				PhotoURL:  "https://cdn.example/user-1/rec-1.jpg",
				Synced:    true,
			},
		},
	}
}

func TestTodayReport_TextGolden(t *testing.T) {
	report := newTodayReport(fixtureView())

	g := goldie.New(t)
	g.Assert(t, "today_text", []byte(report.String()))
}

func TestTodayReport_JSONGolden(t *testing.T) {
	report := newTodayReport(fixtureView())

	data, err := json.MarshalIndent(report, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "today_json", data)
}

func TestTodayReport_EmptyView(t *testing.T) {
	report := newTodayReport(model.TodayView{UserID: "user-1", Day: "2025-03-10"})
	assert.Equal(t, "Attendance for user-1 on 2025-03-10\n  no entries", report.String())
}
