package server

import (
	"fmt"
	"mime/multipart"
	"net/http"

	"photomatch/src/catalog"

	"github.com/gin-gonic/gin"
)

type DeleteImageBody struct {
	Key string `json:"key"`
}

const (
	pageTokenQueryParam = "pageToken"
	mediaFormField      = "image"
	selfieFormField     = "selfie"
	logoFormField       = "logo"
)

func (a *AppHandler) GetImageList(c *gin.Context) {
	if _, err := a.Events.Get(c.Request.Context(), c.Param("id")); err != nil {
		a.fail(c, err)
		return
	}
	page, err := a.Catalog.List(c.Request.Context(), c.Param("id"), c.Query(pageTokenQueryParam))
	if err != nil {
		a.fail(c, err)
		return
	}
	success(c, http.StatusOK, page)
}

func (a *AppHandler) PostImage(c *gin.Context) {
	if _, ok := a.uploadableEvent(c); !ok {
		return
	}
	header, ok := formFile(c, mediaFormField)
	if !ok {
		return
	}
	file, err := header.Open()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "error", "error": fmt.Sprintf("can not read file: %v", err)})
		return
	}
	defer file.Close()

	image, err := a.Catalog.Upload(c.Request.Context(), c.Param("id"), header.Filename, file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		a.fail(c, err)
		return
	}
	success(c, http.StatusCreated, image)
}

func (a *AppHandler) DeleteImage(c *gin.Context) {
	if _, ok := a.managedEvent(c); !ok {
		return
	}
	var body DeleteImageBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "error", "error": fmt.Sprintf("cannot delete: %v", err)})
		return
	}
	if err := a.Catalog.Delete(c.Request.Context(), c.Param("id"), body.Key); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (a *AppHandler) PutCover(c *gin.Context) {
	if _, ok := a.managedEvent(c); !ok {
		return
	}
	header, ok := formFile(c, mediaFormField)
	if !ok {
		return
	}
	file, err := header.Open()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "error", "error": fmt.Sprintf("can not read file: %v", err)})
		return
	}
	defer file.Close()

	event, err := a.Catalog.SetCover(c.Request.Context(), c.Param("id"), file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		a.fail(c, err)
		return
	}
	success(c, http.StatusOK, event)
}

// PutSelfie stores a new profile selfie and propagates it to every match
// record of the user. Records the propagation missed are listed and the
// response is 207.
func (a *AppHandler) PutSelfie(c *gin.Context) {
	ctx := c.Request.Context()
	userID := currentUser(c)
	_, ref, ok := a.uploadUserAsset(c, selfieFormField, catalog.SelfiePrefix(userID))
	if !ok {
		return
	}
	user, err := a.userOrNew(c)
	if err != nil {
		a.fail(c, err)
		return
	}
	user.SelfieURL = ref
	if err := a.Users.PutUser(ctx, user); err != nil {
		a.fail(c, err)
		return
	}
	if _, err := a.Matches.SetProfileSelfie(ctx, userID, ref); err != nil {
		a.fail(c, err)
		return
	}
	report, err := a.Matches.FanOutSelfie(ctx, userID, ref)
	if err != nil {
		a.fail(c, err)
		return
	}
	failed := make([]string, 0, len(report.Failed))
	for id := range report.Failed {
		failed = append(failed, id)
	}
	status := http.StatusOK
	if len(failed) > 0 {
		a.log.Warn().Err(report.Err()).Str("user", userID).Msg("selfie propagation incomplete")
		status = http.StatusMultiStatus
	}
	success(c, status, gin.H{"selfieURL": ref, "updated": report.Updated, "failed": failed})
}

func (a *AppHandler) PutLogo(c *gin.Context) {
	_, ref, ok := a.uploadUserAsset(c, logoFormField, catalog.LogoPrefix(currentUser(c)))
	if !ok {
		return
	}
	user, err := a.userOrNew(c)
	if err != nil {
		a.fail(c, err)
		return
	}
	user.LogoURL = ref
	if err := a.Users.PutUser(c.Request.Context(), user); err != nil {
		a.fail(c, err)
		return
	}
	success(c, http.StatusOK, user)
}

func (a *AppHandler) uploadUserAsset(c *gin.Context, field, prefix string) (key, ref string, ok bool) {
	header, ok := formFile(c, field)
	if !ok {
		return "", "", false
	}
	file, err := header.Open()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "error", "error": fmt.Sprintf("can not read file: %v", err)})
		return "", "", false
	}
	defer file.Close()
	key, ref, err = a.Catalog.UploadUserAsset(c.Request.Context(), prefix, header.Filename, file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		a.fail(c, err)
		return "", "", false
	}
	return key, ref, true
}

func formFile(c *gin.Context, field string) (*multipart.FileHeader, bool) {
	header, err := c.FormFile(field)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "error", "error": fmt.Sprintf("can not find %s in request: %v", field, err)})
		return nil, false
	}
	return header, true
}
