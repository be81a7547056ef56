package trail

import (
	"encoding/json"
	"fmt"
)

// ValidatePayload checks a submission body against its category's shape
// before it is queued. Validation happens at enqueue time: a payload that
// can never be accepted by the server must not sit in the queue blocking
// the items behind it.
func ValidatePayload(category string, body []byte) error {
	switch category {
	case CategoryRoutes:
		var p RoutePayload
		if err := json.Unmarshal(body, &p); err != nil {
			return fmt.Errorf("decode route payload: %w", err)
		}
		if p.TrailID == "" {
			return fmt.Errorf("route payload missing trail_id")
		}
		if len(p.Track) == 0 {
			return fmt.Errorf("route payload missing track")
		}
	case CategoryReports:
		var p ReportPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return fmt.Errorf("decode report payload: %w", err)
		}
		if p.TrailID == "" {
			return fmt.Errorf("report payload missing trail_id")
		}
		if p.Severity < 0 || p.Severity > 5 {
			return fmt.Errorf("report severity %d out of range 0-5", p.Severity)
		}
	case CategoryGuides:
		var p GuidePayload
		if err := json.Unmarshal(body, &p); err != nil {
			return fmt.Errorf("decode guide payload: %w", err)
		}
		if p.TrailID == "" {
			return fmt.Errorf("guide payload missing trail_id")
		}
		if len(p.Patch) == 0 {
			return fmt.Errorf("guide payload missing patch")
		}
	default:
		return fmt.Errorf("unknown category %q", category)
	}
	return nil
}
