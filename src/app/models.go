package app

import "time"

// SizeUnit is the unit an event's total image size is tracked in.
type SizeUnit string

const (
	UnitMB SizeUnit = "MB"
	UnitGB SizeUnit = "GB"
)

// DefaultEventID is the reserved AttendeeMatch event id holding a user's
// profile selfie. It never names a real event.
const DefaultEventID = "default"

// EventStats are the derived counters of an Event.
type EventStats struct {
	PhotoCount     int      `json:"photoCount"`
	VideoCount     int      `json:"videoCount"`
	GuestCount     int      `json:"guestCount"`
	TotalImageSize float64  `json:"totalImageSize"`
	TotalImageUnit SizeUnit `json:"totalImageUnit"`
}

// Event is a published photo collection. ID is the only stable key.
type Event struct {
	ID          string `json:"eventId"`
	Name        string `json:"name"`
	Date        string `json:"date,omitempty"`
	Description string `json:"description,omitempty"`
	CoverImage  string `json:"coverImage,omitempty"`

	EventStats

	// OwnerID is the canonical owner reference. The legacy fields below are
	// aliases of the same relation and are only read through the ownership
	// adapter in the repository package.
	OwnerID     string `json:"ownerId,omitempty"`
	UserEmail   string `json:"userEmail,omitempty"`
	OrganizerID string `json:"organizerId,omitempty"`
	CreatedBy   string `json:"createdBy,omitempty"`

	OrganizationCode string   `json:"organizationCode,omitempty"`
	EmailAccess      []string `json:"emailAccess,omitempty"`
	AnyoneCanUpload  bool     `json:"anyoneCanUpload"`
	FaceCollectionID string   `json:"faceCollectionId,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Owner resolves the owner reference, preferring the canonical field.
func (e *Event) Owner() string {
	for _, v := range []string{e.OwnerID, e.UserEmail, e.OrganizerID, e.CreatedBy} {
		if v != "" {
			return v
		}
	}
	return ""
}

// CollectionID is the face-search collection holding the event's faces.
func (e *Event) CollectionID() string {
	if e.FaceCollectionID != "" {
		return e.FaceCollectionID
	}
	return "event-" + e.ID
}

// AttendeeMatch records which images matched a user for an event.
type AttendeeMatch struct {
	UserID        string    `json:"userId"`
	EventID       string    `json:"eventId"`
	EventName     string    `json:"eventName,omitempty"`
	CoverImage    string    `json:"coverImage,omitempty"`
	SelfieURL     string    `json:"selfieURL,omitempty"`
	MatchedImages []string  `json:"matchedImages"`
	UploadedAt    time.Time `json:"uploadedAt"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

type Role string

const (
	RoleOrganizer Role = "organizer"
	RoleAttendee  Role = "attendee"
)

// User is keyed by email.
type User struct {
	ID               string    `json:"userId"`
	Name             string    `json:"name,omitempty"`
	Role             Role      `json:"role,omitempty"`
	OrganizationCode string    `json:"organizationCode,omitempty"`
	OrganizationName string    `json:"organizationName,omitempty"`
	LogoURL          string    `json:"logoURL,omitempty"`
	SelfieURL        string    `json:"selfieURL,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// OrgLink records that an attendee joined an organization.
type OrgLink struct {
	UserID           string    `json:"userId"`
	OrganizationCode string    `json:"organizationCode"`
	JoinedAt         time.Time `json:"joinedAt"`
}

// S3Image is an image stored under an event prefix.
type S3Image struct {
	// The key (object name) of the image in the bucket.
	Key string `json:"key"`

	// A presigned URL for the image.
	URL string `json:"url"`

	// The size of the image in bytes.
	Size int64 `json:"size"`

	LastModified time.Time `json:"lastModified"`
}
