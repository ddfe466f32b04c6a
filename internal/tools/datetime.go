package tools

import (
	"context"
	"fmt"
	"time"
)

// NewDateTimeTool 返回 get_current_datetime 工具。now 为 nil 时使用 time.Now。
func NewDateTimeTool(now func() time.Time) Tool {
	if now == nil {
		now = time.Now
	}
	return NewFunctionTool(
		"get_current_datetime",
		"Gets the current date and time information. Can provide date, time, timezone, or formatted datetime.",
		objectSchema(map[string]interface{}{
			"format": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"full", "date", "time", "iso", "timestamp"},
				"description": "Format of datetime to return: full (human readable), date (date only), time (time only), iso (ISO format), timestamp (unix timestamp)",
			},
			"timezone": map[string]interface{}{
				"type":        "string",
				"description": "IANA timezone to use (optional). Examples: UTC, America/New_York, Europe/London, Asia/Tokyo",
			},
		}, "format"),
		func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return currentDateTime(now(), stringArg(args, "format", ""), stringArg(args, "timezone", "UTC"))
		},
	)
}

func currentDateTime(now time.Time, format, timezone string) (map[string]interface{}, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	local := now.In(loc)

	switch format {
	case "full":
		return map[string]interface{}{"datetime": local.Format("Monday, January 2, 2006 at 03:04:05 PM MST"), "timezone": timezone}, nil
	case "date":
		return map[string]interface{}{"date": local.Format("January 2, 2006"), "timezone": timezone}, nil
	case "time":
		return map[string]interface{}{"time": local.Format("03:04:05 PM"), "timezone": timezone}, nil
	case "iso":
		return map[string]interface{}{"datetime": local.Format(time.RFC3339), "timezone": timezone}, nil
	case "timestamp":
		return map[string]interface{}{"timestamp": now.Unix(), "milliseconds": now.UnixMilli(), "timezone": timezone}, nil
	default:
		return nil, fmt.Errorf("invalid format %q, use one of: full, date, time, iso, timestamp", format)
	}
}
