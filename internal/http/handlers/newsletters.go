// Newsletter publish HTTP handlers.
//
//   - POST /newsletters        API publish (session or Basic auth), JSON or form
//   - GET  /admin/newsletters  publish form with a fresh idempotency key
//   - POST /admin/newsletters  form publish, redirects with a signed message
//
// Both POST routes sit behind middleware.IdempotencyKey. The response built
// by the first request for a key is recorded and replayed to every retry.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/http/middleware"
	"github.com/tbourn/go-newsletter-backend/internal/services"
)

const (
	msgIssuePublished  = "The newsletter issue has been published!"
	msgIssueIncomplete = "The newsletter issue needs a title, HTML content and plain text content."
	msgIssueInProgress = "This newsletter issue is still being published. Please wait."
)

// IssueContent is the nested content shape accepted by the JSON API.
type IssueContent struct {
	HTML string `json:"html" example:"<p>Hello</p>"`
	Text string `json:"text" example:"Hello"`
}

// PublishRequest is the body of POST /newsletters and POST /admin/newsletters.
// JSON clients may send either flat html_content/text_content or a nested
// content object.
type PublishRequest struct {
	Title          string        `json:"title" form:"title" example:"Issue #1"`
	HTMLContent    string        `json:"html_content" form:"html_content" example:"<p>Hello</p>"`
	TextContent    string        `json:"text_content" form:"text_content" example:"Hello"`
	Content        *IssueContent `json:"content,omitempty" form:"-"`
	IdempotencyKey string        `json:"idempotency_key" form:"idempotency_key" example:"4b0f6a0e-6a55-4a63-9c16-0a43b7a6c1c2"`
}

func (r PublishRequest) issue() services.NewsletterIssue {
	is := services.NewsletterIssue{Title: r.Title, HTMLContent: r.HTMLContent, TextContent: r.TextContent}
	if r.Content != nil {
		if is.HTMLContent == "" {
			is.HTMLContent = r.Content.HTML
		}
		if is.TextContent == "" {
			is.TextContent = r.Content.Text
		}
	}
	return is
}

// PublishResponse is the recorded body of a successful API publish.
type PublishResponse struct {
	Status string `json:"status" example:"published"`
	services.PublishReport
}

func (h *Handlers) bindPublish(c *gin.Context) (PublishRequest, bool) {
	var req PublishRequest
	var err error
	if isJSON(c) {
		err = c.ShouldBindBodyWith(&req, binding.JSON)
	} else {
		err = c.ShouldBind(&req)
	}
	return req, err == nil
}

// PublishNewsletter godoc
// @ID          publishNewsletter
// @Summary     Publish a newsletter issue
// @Description Sends the issue to every confirmed subscriber. Retries with the same
// @Description idempotency key get the recorded response and send nothing.
// @Tags        Newsletters
// @Accept      json
// @Accept      x-www-form-urlencoded
// @Produce     json
// @Security    BasicAuth
// @Param       Idempotency-Key header string false "Idempotency key (or idempotency_key in the body)"
// @Param       body body handlers.PublishRequest true "Issue"
// @Success     200 {object} handlers.PublishResponse
// @Failure     400 {object} handlers.ErrorResponse "Invalid issue or idempotency key"
// @Failure     401 {object} handlers.ErrorResponse "Missing or wrong credentials"
// @Failure     409 {object} handlers.ErrorResponse "Same key still being published"
// @Failure     500 {object} handlers.ErrorResponse "Internal server error"
// @Router      /newsletters [post]
func (h *Handlers) PublishNewsletter(c *gin.Context) {
	req, okBind := h.bindPublish(c)
	if !okBind {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "malformed request body")
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	resp, _, err := h.news.Publish(c.Request.Context(), middleware.UserID(c), key, req.issue(), jsonPublishResponse)
	if err != nil {
		switch services.KindOf(err) {
		case services.KindValidation:
			fail(c, http.StatusBadRequest, ErrCodeInvalidIssue, "title, html and text content are required")
		case services.KindConflict:
			fail(c, http.StatusConflict, ErrCodePublishInProgress, "a publish with this idempotency key is still running")
		default:
			internalError(c, err)
		}
		return
	}
	writeStored(c, resp)
}

func jsonPublishResponse(r services.PublishReport) services.StoredResponse {
	body, _ := json.Marshal(PublishResponse{Status: "published", PublishReport: r})
	return services.StoredResponse{
		StatusCode: http.StatusOK,
		Headers:    domain.HeaderPairs{{Name: "Content-Type", Value: []byte("application/json; charset=utf-8")}},
		Body:       body,
	}
}

// PublishForm renders the admin publish form with a fresh idempotency key.
func (h *Handlers) PublishForm(c *gin.Context) {
	c.HTML(http.StatusOK, "newsletter.html", gin.H{
		"Message":        flashMessage(c, h.codec),
		"IdempotencyKey": uuid.NewString(),
	})
}

// PublishFromAdmin handles the admin publish form. Success and validation
// failures redirect back to the form with a signed message; the success
// redirect is what retries replay.
func (h *Handlers) PublishFromAdmin(c *gin.Context) {
	const back = "/admin/newsletters"

	req, okBind := h.bindPublish(c)
	if !okBind {
		redirectWithMessage(c, back, h.codec.Error(msgIssueIncomplete))
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	respond := func(services.PublishReport) services.StoredResponse {
		return services.StoredResponse{
			StatusCode: http.StatusSeeOther,
			Headers:    domain.HeaderPairs{{Name: "Location", Value: []byte(redirectLocation(back, h.codec.Info(msgIssuePublished)))}},
		}
	}
	resp, _, err := h.news.Publish(c.Request.Context(), middleware.UserID(c), key, req.issue(), respond)
	if err != nil {
		switch services.KindOf(err) {
		case services.KindValidation:
			redirectWithMessage(c, back, h.codec.Error(msgIssueIncomplete))
		case services.KindConflict:
			redirectWithMessage(c, back, h.codec.Error(msgIssueInProgress))
		default:
			internalError(c, err)
		}
		return
	}
	writeStored(c, resp)
}
