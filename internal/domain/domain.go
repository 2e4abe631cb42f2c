package domain

// Job statuses.
const (
	StatusOpen      = "Open"
	StatusPending   = "Pending"
	StatusBooked    = "Booked"
	StatusCompleted = "Completed"
)

// Urgency levels.
const (
	UrgencyNormal = "Normal"
	UrgencyRush   = "Rush"
)

// Review sides.
const (
	SideAgency  = "agency"
	SideOfficer = "officer"
)

// Account kinds and statuses.
const (
	AccountAgency  = "agency"
	AccountOfficer = "officer"

	AccountPending  = "pending"
	AccountVerified = "verified"
)

type Job struct {
	ID           int64   `json:"id"`
	Site         string  `json:"site"`
	SiteType     string  `json:"site_type"`
	Date         string  `json:"date" format:"date"`
	Rank         string  `json:"rank" enum:"SO,SSO,SS,SSS,CSO"`
	StartTime    string  `json:"start_time"`
	EndTime      string  `json:"end_time"`
	Urgency      string  `json:"urgency" enum:"Normal,Rush"`
	SuggestedPay float64 `json:"suggested_pay"`
	OfferPay     float64 `json:"offer_pay"`
	Status       string  `json:"status" enum:"Open,Pending,Booked,Completed"`
	CommittedBy  *string `json:"committed_by,omitempty"`
	CommitTime   *string `json:"commit_time,omitempty" format:"date-time"`

	AgencyReview  *Review `json:"agency_review,omitempty"`
	OfficerReview *Review `json:"officer_review,omitempty"`

	Revision  int64  `json:"revision"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Review struct {
	Rating    int      `json:"rating" minimum:"1" maximum:"5"`
	Traits    []string `json:"traits,omitempty"`
	Comments  string   `json:"comments,omitempty"`
	Timestamp string   `json:"timestamp" format:"date-time"`
}

type Account struct {
	ID          string  `json:"id"`
	Kind        string  `json:"kind" enum:"agency,officer"`
	Name        string  `json:"name"`
	Contact     string  `json:"contact,omitempty"`
	Status      string  `json:"status" enum:"pending,verified"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	ValidatedAt *string `json:"validated_at,omitempty" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
