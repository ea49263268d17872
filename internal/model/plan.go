package model

import "time"

// ActivityType classifies a logged unit of agent work.
type ActivityType string

const (
	ActivityDoorKnock     ActivityType = "door_knock"
	ActivityPhoneCall     ActivityType = "phone_call"
	ActivityAppraisal     ActivityType = "appraisal"
	ActivityClientMeeting ActivityType = "client_meeting"
	ActivityConnection    ActivityType = "connection"
)

// ContractStatus tracks where a property sits in its sales cycle.
type ContractStatus string

const (
	StatusListed        ContractStatus = "listed"
	StatusUnderContract ContractStatus = "under_contract"
	StatusSold          ContractStatus = "sold"
	StatusWithdrawn     ContractStatus = "withdrawn"
)

// DoorKnockStreet is one target street in a marketing plan's door-knock list.
type DoorKnockStreet struct {
	Name          string `json:"name"`
	Why           string `json:"why,omitempty"`
	HouseCount    int    `json:"house_count"`
	TargetKnocks  int    `json:"target_knocks"`
	TargetAnswers int    `json:"target_answers"`
}

// PhoneCallStreet is one target street in a marketing plan's phone-call list.
type PhoneCallStreet struct {
	Name        string `json:"name"`
	Why         string `json:"why,omitempty"`
	TargetCalls int    `json:"target_calls"`
}

// Plan is a declarative set of per-street activity targets for one suburb
// and time window. Street lists are deduplicated by normalized key at the
// decode boundary, so consumers can index them without collision checks.
type Plan struct {
	ID                         string            `json:"id"`
	AgentRef                   string            `json:"agent_ref"`
	Suburb                     string            `json:"suburb"`
	StartDate                  time.Time         `json:"start_date"`
	EndDate                    time.Time         `json:"end_date"`
	DoorKnockStreets           []DoorKnockStreet `json:"door_knock_streets"`
	PhoneCallStreets           []PhoneCallStreet `json:"phone_call_streets"`
	TargetConnects             int               `json:"target_connects"`
	TargetDesktopAppraisals    int               `json:"target_desktop_appraisals"`
	TargetFaceToFaceAppraisals int               `json:"target_face_to_face_appraisals"`
}

// Activity is a single logged action against a suburb/street. Counter fields
// default to zero when the source row omits them; the decode boundary is the
// only place that fills defaults.
type Activity struct {
	ID                   string       `json:"id"`
	AgentRef             string       `json:"agent_ref"`
	Type                 ActivityType `json:"activity_type"`
	Suburb               string       `json:"suburb"`
	Street               string       `json:"street_name,omitempty"`
	Date                 time.Time    `json:"activity_date"`
	KnocksMade           int          `json:"knocks_made,omitempty"`
	CallsConnected       int          `json:"calls_connected,omitempty"`
	CallsAnswered        int          `json:"calls_answered,omitempty"`
	DesktopAppraisals    int          `json:"desktop_appraisals,omitempty"`
	FaceToFaceAppraisals int          `json:"face_to_face_appraisals,omitempty"`
	Tags                 []string     `json:"tags,omitempty"`
	PropertyRef          string       `json:"property_ref,omitempty"`
}

// Property is a read-only listing row consumed by the commission rollup.
type Property struct {
	ID             string         `json:"id"`
	AgencyName     string         `json:"agency_name"`
	AgentName      string         `json:"agent_name"`
	Suburb         string         `json:"suburb"`
	Street         string         `json:"street_name"`
	PropertyType   string         `json:"property_type,omitempty"`
	Price          float64        `json:"price"`
	SoldPrice      float64        `json:"sold_price,omitempty"`
	CommissionRate float64        `json:"commission_rate"`
	ContractStatus ContractStatus `json:"contract_status"`
	ListedDate     time.Time      `json:"listed_date"`
	SoldDate       *time.Time     `json:"sold_date,omitempty"`
}

// Sold reports whether the property should count as sold: either the status
// says so or a sold date is present.
func (p Property) Sold() bool {
	return p.ContractStatus == StatusSold || p.SoldDate != nil
}
