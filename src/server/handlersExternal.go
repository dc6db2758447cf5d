package server

import (
	"errors"
	"fmt"
	"net/http"

	"photomatch/src/app"
	"photomatch/src/catalog"

	"github.com/gin-gonic/gin"
)

type PostMatchBody struct {
	// SelfieURL defaults to the caller's profile selfie.
	SelfieURL string `json:"selfieURL"`
}

// MatchSelfie runs the caller's selfie against the :id event's faces.
func (a *AppHandler) MatchSelfie(c *gin.Context) {
	var body PostMatchBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "error", "error": fmt.Sprintf("can not parse body: %v", err)})
			return
		}
	}
	ctx := c.Request.Context()
	event, err := a.Events.Get(ctx, c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	selfie := body.SelfieURL
	if selfie == "" {
		user, err := a.Users.GetUser(ctx, currentUser(c))
		if err != nil && !errors.Is(err, app.ErrNotFound) {
			a.fail(c, err)
			return
		}
		if user != nil {
			selfie = user.SelfieURL
		}
	}
	if selfie == "" {
		a.fail(c, &app.ValidationError{Field: "selfieURL", Reason: "is required when no profile selfie is stored"})
		return
	}
	if !a.Catalog.InUserPrefix(selfie, catalog.SelfiePrefix(currentUser(c))) {
		a.fail(c, fmt.Errorf("selfie of another user: %w", app.ErrForbidden))
		return
	}
	result, err := a.Orchestrator.MatchSelfieToEvent(ctx, currentUser(c), selfie, event)
	if err != nil {
		a.fail(c, err)
		return
	}
	success(c, http.StatusOK, result)
}
