package provider

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// FormatValue renders a decoded JSON value as a table cell. Numbers are
// written in plain decimal notation, never in exponent form.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ""
		}
		return decimal.NewFromFloat(x).String()
	case float32:
		return FormatValue(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case json.Number:
		if d, err := decimal.NewFromString(x.String()); err == nil {
			return d.String()
		}
		return x.String()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// FlattenRecords turns decoded JSON objects into flat string records.
func FlattenRecords(objs []map[string]any) []map[string]string {
	out := make([]map[string]string, 0, len(objs))
	for _, o := range objs {
		rec := make(map[string]string, len(o))
		for k, v := range o {
			rec[k] = FormatValue(v)
		}
		out = append(out, rec)
	}
	return out
}

// PeriodStart returns the first day covered by a lookback period such as
// "1mo" or "ytd", relative to now. "max" reaches back to the Unix epoch.
func PeriodStart(period string, now time.Time) (time.Time, error) {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch p := strings.ToLower(strings.TrimSpace(period)); p {
	case "max":
		return time.Unix(0, 0).UTC(), nil
	case "ytd":
		return time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC), nil
	default:
		n, unit, err := splitPeriod(p)
		if err != nil {
			return time.Time{}, eris.Wrapf(err, "provider: parse period %q", period)
		}
		switch unit {
		case "d":
			return day.AddDate(0, 0, -n), nil
		case "wk":
			return day.AddDate(0, 0, -7*n), nil
		case "mo":
			return day.AddDate(0, -n, 0), nil
		case "y":
			return day.AddDate(-n, 0, 0), nil
		}
		return time.Time{}, eris.Errorf("provider: unknown period unit %q", unit)
	}
}

func splitPeriod(p string) (int, string, error) {
	i := 0
	for i < len(p) && p[i] >= '0' && p[i] <= '9' {
		i++
	}
	if i == 0 || i == len(p) {
		return 0, "", eris.New("expected <number><unit>")
	}
	n, err := strconv.Atoi(p[:i])
	if err != nil || n <= 0 {
		return 0, "", eris.New("period length must be positive")
	}
	return n, p[i:], nil
}
