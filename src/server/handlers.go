package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"photomatch/src/app"
	"photomatch/src/catalog"
	"photomatch/src/events"
	"photomatch/src/facematch"
	"photomatch/src/matchstore"
	"photomatch/src/repository"
	"photomatch/src/stats"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type (
	// Dependencies are the services the HTTP layer exposes.
	Dependencies struct {
		Events        *events.Service
		Organizations *events.Organizations
		Catalog       *catalog.Catalog
		Matches       *matchstore.Store
		Orchestrator  *facematch.Orchestrator
		Aggregator    *stats.Aggregator
		Users         repository.UserStore
		Auth          Authenticator
	}

	AppHandler struct {
		Dependencies
		log zerolog.Logger
	}

	RegisterOrganizationBody struct {
		Name string `json:"name"`
	}

	JoinOrganizationBody struct {
		Code string `json:"organizationCode"`
	}
)

func NewHandler(deps Dependencies, logger zerolog.Logger) *AppHandler {
	return &AppHandler{Dependencies: deps, log: logger.With().Str("component", "http").Logger()}
}

func (a *AppHandler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (a *AppHandler) CreateEvent(c *gin.Context) {
	var body events.CreateInput
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "error", "error": fmt.Sprintf("can not parse body: %v", err)})
		return
	}
	body.OwnerID = currentUser(c)
	event, err := a.Events.Create(c.Request.Context(), body)
	if err != nil {
		a.fail(c, err)
		return
	}
	success(c, http.StatusCreated, event)
}

func (a *AppHandler) GetEvent(c *gin.Context) {
	event, err := a.Events.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	success(c, http.StatusOK, event)
}

func (a *AppHandler) UpdateEvent(c *gin.Context) {
	var patch events.MetadataPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "error", "error": fmt.Sprintf("can not parse body: %v", err)})
		return
	}
	event, err := a.Events.UpdateMetadata(c.Request.Context(), c.Param("id"), currentUser(c), patch)
	if err != nil {
		a.fail(c, err)
		return
	}
	success(c, http.StatusOK, event)
}

func (a *AppHandler) DeleteEvent(c *gin.Context) {
	if _, ok := a.managedEvent(c); !ok {
		return
	}
	if err := a.Catalog.DeleteEvent(c.Request.Context(), c.Param("id")); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (a *AppHandler) ListOwnedEvents(c *gin.Context) {
	owned, err := a.Events.ListOwned(c.Request.Context(), currentUser(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	success(c, http.StatusOK, owned)
}

func (a *AppHandler) GetSummary(c *gin.Context) {
	summary, err := a.Aggregator.ForUser(c.Request.Context(), currentUser(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	success(c, http.StatusOK, summary)
}

func (a *AppHandler) ListMatches(c *gin.Context) {
	matches, err := a.Matches.List(c.Request.Context(), currentUser(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	success(c, http.StatusOK, matches)
}

func (a *AppHandler) GetMatchStatistics(c *gin.Context) {
	st, err := a.Matches.Statistics(c.Request.Context(), currentUser(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	success(c, http.StatusOK, st)
}

func (a *AppHandler) RegisterOrganization(c *gin.Context) {
	var body RegisterOrganizationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "error", "error": fmt.Sprintf("can not parse body: %v", err)})
		return
	}
	user, err := a.Organizations.RegisterOrganizer(c.Request.Context(), currentUser(c), body.Name)
	if err != nil {
		a.fail(c, err)
		return
	}
	success(c, http.StatusOK, user)
}

func (a *AppHandler) JoinOrganization(c *gin.Context) {
	var body JoinOrganizationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "error", "error": fmt.Sprintf("can not parse body: %v", err)})
		return
	}
	org, err := a.Organizations.Join(c.Request.Context(), currentUser(c), body.Code)
	if err != nil {
		a.fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"organizationCode": org.OrganizationCode, "organizationName": org.OrganizationName})
}

func (a *AppHandler) ListOrganizations(c *gin.Context) {
	links, err := a.Organizations.ListLinks(c.Request.Context(), currentUser(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	success(c, http.StatusOK, links)
}

func (a *AppHandler) ListOrganizationEvents(c *gin.Context) {
	list, err := a.Organizations.EventsForOrganization(c.Request.Context(), c.Param("code"))
	if err != nil {
		a.fail(c, err)
		return
	}
	success(c, http.StatusOK, list)
}

// managedEvent loads the :id event and aborts unless the caller owns it.
func (a *AppHandler) managedEvent(c *gin.Context) (*app.Event, bool) {
	event, err := a.Events.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return nil, false
	}
	if !events.CanManage(event, currentUser(c)) {
		a.fail(c, fmt.Errorf("event %s: %w", event.ID, app.ErrForbidden))
		return nil, false
	}
	return event, true
}

// uploadableEvent loads the :id event and aborts unless the caller may add
// media to it.
func (a *AppHandler) uploadableEvent(c *gin.Context) (*app.Event, bool) {
	event, err := a.Events.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return nil, false
	}
	if !events.CanUpload(event, currentUser(c)) {
		a.fail(c, fmt.Errorf("upload to event %s: %w", event.ID, app.ErrForbidden))
		return nil, false
	}
	return event, true
}

// userOrNew returns the stored user or a fresh attendee record.
func (a *AppHandler) userOrNew(c *gin.Context) (*app.User, error) {
	id := currentUser(c)
	user, err := a.Users.GetUser(c.Request.Context(), id)
	if errors.Is(err, app.ErrNotFound) {
		return &app.User{ID: id, Role: app.RoleAttendee, CreatedAt: time.Now().UTC()}, nil
	}
	return user, err
}

func (a *AppHandler) fail(c *gin.Context, err error) {
	respondError(c, a.log, err)
}
