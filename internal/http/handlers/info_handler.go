// Informational endpoints: health, stats and the FAQ catalogue.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-ticket-intake/internal/domain"
	"github.com/tbourn/go-ticket-intake/internal/faq"
)

// faqPreviewRunes caps the answer preview on GET /faq.
const faqPreviewRunes = 100

// HealthResponse reports liveness plus a few cheap gauges.
type HealthResponse struct {
	// Status is "healthy" or "degraded" (database unreachable).
	Status              string  `json:"status" example:"healthy"`
	ActiveConversations int     `json:"active_conversations" example:"3"`
	Uptime              float64 `json:"uptime" example:"3600.5"`
}

// StatsResponse summarizes the chat surface and the intake pipeline.
type StatsResponse struct {
	ActiveConversations int                            `json:"active_conversations"`
	Messages            map[domain.MessageStatus]int64 `json:"messages"`
	FAQEntries          int                            `json:"faq_entries"`
}

// FAQItem is one FAQ entry as listed by GET /faq.
type FAQItem struct {
	Questions     []string `json:"questions"`
	AnswerPreview string   `json:"answer_preview"`
}

// FAQResponse lists the knowledge base.
type FAQResponse struct {
	Count int       `json:"faq_count"`
	FAQs  []FAQItem `json:"faqs"`
}

// Health godoc
// @ID          health
// @Summary     Liveness and basic gauges
// @Tags        Info
// @Produce     json
// @Success     200  {object}  handlers.HealthResponse
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	status := "healthy"
	if h.opts.DB != nil && pingDB(c.Request.Context(), h) != nil {
		status = "degraded"
	}
	ok(c, http.StatusOK, HealthResponse{
		Status:              status,
		ActiveConversations: h.chatSvc.ActiveConversations(),
		Uptime:              h.opts.Now().Sub(h.opts.StartedAt).Seconds(),
	})
}

func pingDB(ctx context.Context, h *Handlers) error {
	sqlDB, err := h.opts.DB.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// Stats godoc
// @ID          stats
// @Summary     Chat and pipeline statistics
// @Tags        Info
// @Produce     json
// @Success     200  {object}  handlers.StatsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /stats [get]
func (h *Handlers) Stats(c *gin.Context) {
	counts, err := h.msgSvc.StatusCounts(c.Request.Context())
	if err != nil {
		serverError(c, ErrCodeStatsFailed, err)
		return
	}
	resp := StatsResponse{
		ActiveConversations: h.chatSvc.ActiveConversations(),
		Messages:            counts,
	}
	if h.faq != nil {
		resp.FAQEntries = h.faq.Len()
	}
	ok(c, http.StatusOK, resp)
}

// ListFAQ godoc
// @ID          listFAQ
// @Summary     List FAQ entries
// @Description Returns every FAQ entry with its question phrasings and a short answer preview.
// @Tags        Info
// @Produce     json
// @Success     200  {object}  handlers.FAQResponse
// @Router      /faq [get]
func (h *Handlers) ListFAQ(c *gin.Context) {
	resp := FAQResponse{FAQs: []FAQItem{}}
	if h.faq != nil {
		for _, e := range h.faq.Entries() {
			resp.FAQs = append(resp.FAQs, FAQItem{
				Questions:     e.Questions,
				AnswerPreview: faq.Preview(e.Answer, faqPreviewRunes),
			})
		}
	}
	resp.Count = len(resp.FAQs)
	ok(c, http.StatusOK, resp)
}
