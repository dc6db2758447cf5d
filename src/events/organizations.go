package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"photomatch/src/allocator"
	"photomatch/src/app"
	"photomatch/src/repository"

	"github.com/rs/zerolog"
)

// Organizations manages organizer accounts and the attendees that joined them.
type Organizations struct {
	users  repository.UserStore
	links  repository.OrgLinkStore
	events repository.EventStore
	codes  *allocator.OrganizationCodes
	now    func() time.Time
	log    zerolog.Logger
}

func NewOrganizations(store repository.Store, codes *allocator.OrganizationCodes, logger zerolog.Logger) *Organizations {
	return &Organizations{
		users:  store,
		links:  store,
		events: store,
		codes:  codes,
		now:    time.Now,
		log:    logger.With().Str("component", "organizations").Logger(),
	}
}

// RegisterOrganizer gives userID an organization code. A user that already
// has one keeps it and only the name is refreshed.
func (o *Organizations) RegisterOrganizer(ctx context.Context, userID, orgName string) (*app.User, error) {
	if err := app.Required("userId", userID, "organizationName", orgName); err != nil {
		return nil, err
	}
	user, err := o.users.GetUser(ctx, userID)
	switch {
	case errors.Is(err, app.ErrNotFound):
		user = &app.User{ID: userID, CreatedAt: o.now().UTC()}
	case err != nil:
		return nil, err
	}
	if user.OrganizationCode == "" {
		code, err := o.codes.Allocate(ctx)
		if err != nil {
			return nil, fmt.Errorf("allocate organization code: %w", err)
		}
		user.OrganizationCode = code
	}
	user.Role = app.RoleOrganizer
	user.OrganizationName = strings.TrimSpace(orgName)
	if err := o.users.PutUser(ctx, user); err != nil {
		return nil, err
	}
	o.log.Info().Str("user", userID).Str("code", user.OrganizationCode).Msg("organizer registered")
	return user, nil
}

// Join links userID to the organization owning code. Joining twice is a no-op.
func (o *Organizations) Join(ctx context.Context, userID, code string) (*app.User, error) {
	if err := app.Required("userId", userID, "organizationCode", code); err != nil {
		return nil, err
	}
	org, err := o.users.FindUserByOrganizationCode(ctx, code)
	if err != nil {
		return nil, err
	}
	existing, err := o.links.ListOrgLinks(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, l := range existing {
		if l.OrganizationCode == code {
			return org, nil
		}
	}
	if err := o.links.PutOrgLink(ctx, app.OrgLink{UserID: userID, OrganizationCode: code, JoinedAt: o.now().UTC()}); err != nil {
		return nil, err
	}
	o.log.Info().Str("user", userID).Str("code", code).Msg("joined organization")
	return org, nil
}

func (o *Organizations) ListLinks(ctx context.Context, userID string) ([]app.OrgLink, error) {
	if err := app.Required("userId", userID); err != nil {
		return nil, err
	}
	return o.links.ListOrgLinks(ctx, userID)
}

// EventsForOrganization lists the events tagged with code.
func (o *Organizations) EventsForOrganization(ctx context.Context, code string) ([]app.Event, error) {
	if err := app.Required("organizationCode", code); err != nil {
		return nil, err
	}
	return o.events.ListEventsByField(ctx, "organizationCode", code)
}
