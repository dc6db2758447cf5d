package repository

import (
	"time"

	"photomatch/src/app"
)

// Documents as persisted in the remote store. Timestamps are RFC 3339
// strings so records written by older clients decode unchanged.

type eventDoc struct {
	EventID          string   `json:"eventId"`
	Name             string   `json:"name"`
	Date             string   `json:"date,omitempty"`
	Description      string   `json:"description,omitempty"`
	CoverImage       string   `json:"coverImage,omitempty"`
	PhotoCount       int      `json:"photoCount"`
	VideoCount       int      `json:"videoCount"`
	GuestCount       int      `json:"guestCount"`
	TotalImageSize   float64  `json:"totalImageSize"`
	TotalImageUnit   string   `json:"totalImageUnit,omitempty"`
	OwnerID          string   `json:"ownerId,omitempty"`
	UserEmail        string   `json:"userEmail,omitempty"`
	OrganizerID      string   `json:"organizerId,omitempty"`
	CreatedBy        string   `json:"createdBy,omitempty"`
	OrganizationCode string   `json:"organizationCode,omitempty"`
	EmailAccess      []string `json:"emailAccess,omitempty"`
	AnyoneCanUpload  bool     `json:"anyoneCanUpload"`
	FaceCollectionID string   `json:"faceCollectionId,omitempty"`
	Version          int64    `json:"version"`
	CreatedAt        string   `json:"createdAt,omitempty"`
	UpdatedAt        string   `json:"updatedAt,omitempty"`
}

type matchDoc struct {
	UserID        string   `json:"userId"`
	EventID       string   `json:"eventId"`
	EventName     string   `json:"eventName,omitempty"`
	CoverImage    string   `json:"coverImage,omitempty"`
	SelfieURL     string   `json:"selfieURL,omitempty"`
	MatchedImages []string `json:"matchedImages"`
	UploadedAt    string   `json:"uploadedAt,omitempty"`
	LastUpdated   string   `json:"lastUpdated,omitempty"`
}

type userDoc struct {
	UserID           string `json:"userId"`
	Name             string `json:"name,omitempty"`
	Role             string `json:"role,omitempty"`
	OrganizationCode string `json:"organizationCode,omitempty"`
	OrganizationName string `json:"organizationName,omitempty"`
	LogoURL          string `json:"logoURL,omitempty"`
	SelfieURL        string `json:"selfieURL,omitempty"`
	CreatedAt        string `json:"createdAt,omitempty"`
}

type orgLinkDoc struct {
	UserID           string `json:"userId"`
	OrganizationCode string `json:"organizationCode"`
	JoinedAt         string `json:"joinedAt,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime accepts RFC 3339 with or without fractional seconds; anything
// else decodes as the zero time.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func toEventDoc(e *app.Event) eventDoc {
	return eventDoc{
		EventID:          e.ID,
		Name:             e.Name,
		Date:             e.Date,
		Description:      e.Description,
		CoverImage:       e.CoverImage,
		PhotoCount:       e.PhotoCount,
		VideoCount:       e.VideoCount,
		GuestCount:       e.GuestCount,
		TotalImageSize:   e.TotalImageSize,
		TotalImageUnit:   string(e.TotalImageUnit),
		OwnerID:          e.OwnerID,
		UserEmail:        e.UserEmail,
		OrganizerID:      e.OrganizerID,
		CreatedBy:        e.CreatedBy,
		OrganizationCode: e.OrganizationCode,
		EmailAccess:      e.EmailAccess,
		AnyoneCanUpload:  e.AnyoneCanUpload,
		FaceCollectionID: e.FaceCollectionID,
		Version:          e.Version,
		CreatedAt:        formatTime(e.CreatedAt),
		UpdatedAt:        formatTime(e.UpdatedAt),
	}
}

func (d eventDoc) event() app.Event {
	unit := app.SizeUnit(d.TotalImageUnit)
	if unit != app.UnitGB {
		unit = app.UnitMB
	}
	return app.Event{
		ID:          d.EventID,
		Name:        d.Name,
		Date:        d.Date,
		Description: d.Description,
		CoverImage:  d.CoverImage,
		EventStats: app.EventStats{
			PhotoCount:     d.PhotoCount,
			VideoCount:     d.VideoCount,
			GuestCount:     d.GuestCount,
			TotalImageSize: d.TotalImageSize,
			TotalImageUnit: unit,
		},
		OwnerID:          d.OwnerID,
		UserEmail:        d.UserEmail,
		OrganizerID:      d.OrganizerID,
		CreatedBy:        d.CreatedBy,
		OrganizationCode: d.OrganizationCode,
		EmailAccess:      d.EmailAccess,
		AnyoneCanUpload:  d.AnyoneCanUpload,
		FaceCollectionID: d.FaceCollectionID,
		Version:          d.Version,
		CreatedAt:        parseTime(d.CreatedAt),
		UpdatedAt:        parseTime(d.UpdatedAt),
	}
}

func toMatchDoc(m *app.AttendeeMatch) matchDoc {
	images := m.MatchedImages
	if images == nil {
		images = []string{}
	}
	return matchDoc{
		UserID:        m.UserID,
		EventID:       m.EventID,
		EventName:     m.EventName,
		CoverImage:    m.CoverImage,
		SelfieURL:     m.SelfieURL,
		MatchedImages: images,
		UploadedAt:    formatTime(m.UploadedAt),
		LastUpdated:   formatTime(m.LastUpdated),
	}
}

func (d matchDoc) match() app.AttendeeMatch {
	return app.AttendeeMatch{
		UserID:        d.UserID,
		EventID:       d.EventID,
		EventName:     d.EventName,
		CoverImage:    d.CoverImage,
		SelfieURL:     d.SelfieURL,
		MatchedImages: d.MatchedImages,
		UploadedAt:    parseTime(d.UploadedAt),
		LastUpdated:   parseTime(d.LastUpdated),
	}
}

func toUserDoc(u *app.User) userDoc {
	return userDoc{
		UserID:           u.ID,
		Name:             u.Name,
		Role:             string(u.Role),
		OrganizationCode: u.OrganizationCode,
		OrganizationName: u.OrganizationName,
		LogoURL:          u.LogoURL,
		SelfieURL:        u.SelfieURL,
		CreatedAt:        formatTime(u.CreatedAt),
	}
}

func (d userDoc) user() app.User {
	return app.User{
		ID:               d.UserID,
		Name:             d.Name,
		Role:             app.Role(d.Role),
		OrganizationCode: d.OrganizationCode,
		OrganizationName: d.OrganizationName,
		LogoURL:          d.LogoURL,
		SelfieURL:        d.SelfieURL,
		CreatedAt:        parseTime(d.CreatedAt),
	}
}

func toOrgLinkDoc(l app.OrgLink) orgLinkDoc {
	return orgLinkDoc{UserID: l.UserID, OrganizationCode: l.OrganizationCode, JoinedAt: formatTime(l.JoinedAt)}
}

func (d orgLinkDoc) link() app.OrgLink {
	return app.OrgLink{UserID: d.UserID, OrganizationCode: d.OrganizationCode, JoinedAt: parseTime(d.JoinedAt)}
}
