package handlers

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"history-calendar-loadtest/internal/calendar"
	"history-calendar-loadtest/internal/utils"

	"github.com/gin-gonic/gin"
)

// CalendarResult is the V2 result payload.
type CalendarResult struct {
	Year  int      `json:"year"`
	Month int      `json:"month"`
	Dates []string `json:"dates"`
}

// DateSource returns the dates of a month that have history entries.
type DateSource func(year int, month time.Month) []string

type CalendarHandler struct {
	dates DateSource
}

// NewCalendarHandler serves dates from src, or from SampleDates when src is
// nil.
func NewCalendarHandler(src DateSource) *CalendarHandler {
	if src == nil {
		src = SampleDates
	}
	return &CalendarHandler{dates: src}
}

// GetCalendar handles GET /calendar?year=&month=. Requests without an
// X-App-Version header are answered in the legacy V1 shape.
func (h *CalendarHandler) GetCalendar(c *gin.Context) {
	resp := utils.NewResponseHelper(c)

	year, err := parseBounded(c.Query("year"), 1, 9999)
	if err != nil {
		resp.BadRequest("invalid year: " + err.Error())
		return
	}
	month, err := parseBounded(c.Query("month"), 1, 12)
	if err != nil {
		resp.BadRequest("invalid month: " + err.Error())
		return
	}

	version := calendar.AppVersionV1
	if raw := c.GetHeader(calendar.HeaderAppVersion); raw != "" {
		if version, err = calendar.ParseAppVersion(raw); err != nil {
			resp.BadRequest(err.Error())
			return
		}
	}

	dates := h.dates(year, time.Month(month))
	if dates == nil {
		dates = []string{}
	}

	if version == calendar.AppVersionV1 {
		resp.Success(dates)
		return
	}
	resp.Success(CalendarResult{Year: year, Month: month, Dates: dates})
}

func parseBounded(raw string, min, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("required")
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", raw)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%d out of range %d-%d", v, min, max)
	}
	return v, nil
}

// SampleDates marks roughly every third day of the month, varying by month,
// so responses differ across a sweep.
func SampleDates(year int, month time.Month) []string {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	days := first.AddDate(0, 1, -1).Day()

	dates := make([]string, 0, days/3+1)
	for d := 1; d <= days; d++ {
		if (d+int(month))%3 == 0 {
			dates = append(dates, first.AddDate(0, 0, d-1).Format("2006-01-02"))
		}
	}
	return dates
}
