package api

import (
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/health-recorder-ai/health-recorder/internal/api/middleware"
	"github.com/health-recorder-ai/health-recorder/internal/chat"
	apperrors "github.com/health-recorder-ai/health-recorder/internal/errors"
	"github.com/health-recorder-ai/health-recorder/internal/filter"
	"github.com/health-recorder-ai/health-recorder/internal/logging"
	"github.com/health-recorder-ai/health-recorder/internal/record"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	defaultLogLimit = 100

	savedRedirect = "/chat?saved=1"
)

type recordPage struct {
	Error string
	Text  string
}

type chatPage struct {
	Saved      bool
	Error      string
	Message    string
	MaxAgeDays string
	Keywords   string

	Answer         template.HTML
	Degraded       bool
	ContextRecords int
	Model          string
}

// pageMessage maps an error onto the text shown on the HTML pages.
func pageMessage(err error) string {
	appErr, ok := apperrors.As(err)
	if !ok {
		return "エラーが発生しました。"
	}
	switch appErr.Code {
	case apperrors.CodeEmptyRecord:
		return "記録内容を入力してください。"
	case apperrors.CodeEmptyMessage:
		return "質問を入力してください。"
	case apperrors.CodeStorageWriteFailed:
		return "記録の保存に失敗しました。"
	default:
		return "エラーが発生しました。"
	}
}

func (s *Server) showRecordForm(c *gin.Context) {
	c.HTML(http.StatusOK, "record.html", recordPage{})
}

// submitRecord saves the form text and redirects to the chat page. Failures
// re-render the form with the status of the error so nothing is lost silently.
func (s *Server) submitRecord(c *gin.Context) {
	text := c.PostForm("health_record")
	_, err := s.getService().SubmitRecord(c.Request.Context(), text)
	if err != nil {
		status := apperrors.StatusOf(err)
		if status >= http.StatusInternalServerError {
			middleware.RecordSaved(err)
			log.WithError(err).Error("record submission failed")
		}
		c.HTML(status, "record.html", recordPage{Error: pageMessage(err), Text: text})
		return
	}
	middleware.RecordSaved(nil)
	c.Redirect(http.StatusSeeOther, savedRedirect)
}

func (s *Server) showChat(c *gin.Context) {
	c.HTML(http.StatusOK, "chat.html", chatPage{Saved: c.Query("saved") != ""})
}

// submitChat always answers 200: a gateway outage shows the apology text.
func (s *Server) submitChat(c *gin.Context) {
	message := c.PostForm("message")
	maxAge := c.PostForm("max_age_days")
	keywords := c.PostForm("keywords")
	page := chatPage{Message: message, MaxAgeDays: maxAge, Keywords: keywords}

	res, err := s.getService().Ask(c.Request.Context(), chat.AskRequest{
		Message:  message,
		Criteria: filter.FromForm(maxAge, keywords),
	})
	if err != nil {
		page.Error = pageMessage(err)
		c.HTML(http.StatusOK, "chat.html", page)
		return
	}
	middleware.ObserveChatContext(res.ContextRecords)

	// The rendered answer is model output and is inserted without escaping.
	page.Answer = template.HTML(res.HTML)
	page.Degraded = res.Degraded
	page.ContextRecords = res.ContextRecords
	page.Model = res.Model
	c.HTML(http.StatusOK, "chat.html", page)
}

func (s *Server) listRecords(c *gin.Context) {
	criteria := filter.FromForm(c.Query("max_age_days"), c.Query("keywords"))
	records, err := s.getService().Records(c.Request.Context(), criteria)
	if err != nil {
		abortWithError(c, apperrors.New(http.StatusInternalServerError, apperrors.CodeStorageReadFailed, "failed to read health records", err))
		return
	}
	if records == nil {
		records = []record.Record{}
	}
	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"count":   len(records),
	})
}

// chatJSON accepts {message, max_age_days, keywords}. max_age_days may be a
// number or a string; keywords may be a string or an array of strings.
func (s *Server) chatJSON(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil || !gjson.ValidBytes(body) {
		abortWithError(c, apperrors.BadRequest(apperrors.CodeInvalidRequest, "request body must be a JSON object"))
		return
	}
	parsed := gjson.ParseBytes(body)
	if !parsed.IsObject() {
		abortWithError(c, apperrors.BadRequest(apperrors.CodeInvalidRequest, "request body must be a JSON object"))
		return
	}

	criteria := filter.Criteria{
		MaxAgeDays: filter.ParseMaxAgeDays(parsed.Get("max_age_days").String()),
		Keywords:   keywordsFromJSON(parsed.Get("keywords")),
	}
	res, err := s.getService().Ask(c.Request.Context(), chat.AskRequest{
		Message:  parsed.Get("message").String(),
		Criteria: criteria,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	middleware.ObserveChatContext(res.ContextRecords)

	c.JSON(http.StatusOK, gin.H{
		"answer_html":     res.HTML,
		"answer":          res.Answer,
		"degraded":        res.Degraded,
		"context_records": res.ContextRecords,
		"model":           res.Model,
		"cached":          res.Cached,
	})
}

func keywordsFromJSON(v gjson.Result) []string {
	if !v.IsArray() {
		return filter.ParseKeywords(v.String())
	}
	var out []string
	for _, item := range v.Array() {
		if kw := strings.TrimSpace(item.String()); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

func (s *Server) tailLogs(c *gin.Context) {
	logging.SkipGinRequestLogging(c)
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLogLimit
	}
	entries := s.logBuffer.Recent(limit)
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) healthz(c *gin.Context) {
	logging.SkipGinRequestLogging(c)
	cfg := s.getConfig()
	c.JSON(http.StatusOK, gin.H{
		"status":             "ok",
		"model":              cfg.Model,
		"store":              cfg.Store.Backend,
		"active_connections": middleware.GetActiveConnections(),
	})
}

// abortWithError writes err as {"error": {...}} with its HTTP status.
func abortWithError(c *gin.Context, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.Internal(err)
	}
	if appErr.HTTPStatusCode >= http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.Request.URL.Path).Error("request failed")
	}
	c.AbortWithStatusJSON(appErr.HTTPStatusCode, gin.H{"error": appErr})
}
