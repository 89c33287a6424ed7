package handlers

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stockbook/stockbook/internal/domain/errs"
	"github.com/stockbook/stockbook/internal/domain/models"
)

const dateLayout = "2006-01-02"

// Form values arrive as strings and are parsed here; range checks happen in
// the services.

func parseInt(field, value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, errs.Invalid(field, "must be a whole number")
	}
	return n, nil
}

func parseFloat(field, value string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, errs.Invalid(field, "must be a number")
	}
	return f, nil
}

// parseDate accepts YYYY-MM-DD or RFC 3339. An empty value is returned as the
// zero time so the service reports the field as required.
func parseDate(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, errs.Invalid(field, "must be a date (YYYY-MM-DD)")
	}
	return t, nil
}

// parseCheckbox treats HTML checkbox and boolean spellings as true.
func parseCheckbox(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

func actor(c *gin.Context) (models.Actor, bool) {
	id := strings.TrimSpace(c.GetHeader(ActorHeader))
	if id == "" {
		return models.Actor{}, false
	}
	return models.Actor{ID: id}, true
}

type listQuery struct {
	From  time.Time
	To    time.Time
	Limit int
}

func parseListQuery(c *gin.Context) (listQuery, error) {
	var q listQuery
	var err error
	if q.From, err = parseDate("from", c.Query("from")); err != nil {
		return q, err
	}
	if q.To, err = parseDate("to", c.Query("to")); err != nil {
		return q, err
	}
	if len(strings.TrimSpace(c.Query("to"))) == len(dateLayout) {
		q.To = q.To.Add(24*time.Hour - time.Nanosecond)
	}
	if raw := c.Query("limit"); raw != "" {
		if q.Limit, err = parseInt("limit", raw); err != nil {
			return q, err
		}
		if q.Limit < 0 {
			return q, errs.Invalid("limit", "must be at least 0")
		}
	}
	return q, nil
}

// formValue is a form field that also accepts JSON numbers and booleans, so
// JSON clients and HTML forms share one parsing path.
type formValue string

func (v *formValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = formValue(s)
		return nil
	}
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if string(raw) == "null" {
		*v = ""
		return nil
	}
	*v = formValue(raw)
	return nil
}
