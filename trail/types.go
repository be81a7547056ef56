// Package trail defines the domain records exchanged with the hosted
// trail-tracking store.
package trail

import "encoding/json"

// Trail is one published trail guide document.
type Trail struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	Region              string  `json:"region"`
	DistanceKm          float64 `json:"distance_km"`
	SurfaceType         string  `json:"surface_type"`
	AccessibilityRating int     `json:"accessibility_rating"` // 1 (barrier-free) .. 5 (inaccessible)
	StepFree            bool    `json:"step_free"`
	AccessibleParking   bool    `json:"accessible_parking"`
	AccessibleToilets   bool    `json:"accessible_toilets"`
	UpdatedAt           string  `json:"updated_at"`
}

// Stats aggregates the landing-page counters.
type Stats struct {
	TrailCount    int     `json:"trail_count"`
	ReportCount   int     `json:"report_count"`
	GuideCount    int     `json:"guide_count"`
	KmMapped      float64 `json:"km_mapped"`
	ContributorID string  `json:"contributor_id,omitempty"`
}

// Pending-write categories. Each maps to one sync-queue FIFO.
const (
	CategoryRoutes  = "routes"
	CategoryReports = "reports"
	CategoryGuides  = "guides"
)

// RoutePayload is a user-recorded route awaiting upload.
type RoutePayload struct {
	TrailID    string          `json:"trail_id"`
	RecordedBy string          `json:"recorded_by"`
	Track      json.RawMessage `json:"track"` // GPX-ish blob, opaque to the sync layer
	DurationS  int64           `json:"duration_s"`
}

// ReportPayload is an accessibility survey submission.
type ReportPayload struct {
	TrailID  string          `json:"trail_id"`
	Author   string          `json:"author"`
	Answers  json.RawMessage `json:"answers"`
	Severity int             `json:"severity"`
}

// GuidePayload is an edit to a trail guide.
type GuidePayload struct {
	TrailID string          `json:"trail_id"`
	Editor  string          `json:"editor"`
	Patch   json.RawMessage `json:"patch"`
}
