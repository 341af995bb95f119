package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"news_digest/internal/model"
	"news_digest/internal/pipeline"
	"news_digest/internal/preference"
	"news_digest/internal/storage"
)

type briefEntry struct {
	Rank    int     `json:"rank"`
	Score   float64 `json:"score"`
	ItemID  int64   `json:"item_id"`
	Title   string  `json:"title"`
	Summary string  `json:"summary"`
	URL     string  `json:"url"`
	Source  string  `json:"source"`
}

type briefResponse struct {
	UserID  int64        `json:"user_id"`
	Date    string       `json:"date"`
	Entries []briefEntry `json:"entries"`
}

type digestInfo struct {
	ID        int64     `json:"id"`
	Date      string    `json:"date"`
	Language  string    `json:"language"`
	Entries   int       `json:"entries"`
	CreatedAt time.Time `json:"created_at"`
}

type preferences struct {
	UserID          int64    `json:"user_id"`
	Enabled         bool     `json:"enabled"`
	Categories      []string `json:"categories"`
	Language        string   `json:"language"`
	Region          string   `json:"region"`
	IncludeKeywords []string `json:"include_keywords"`
	ExcludeKeywords []string `json:"exclude_keywords"`
	IncludeAcademic bool     `json:"include_academic"`
	DailyLimit      int      `json:"daily_limit"`
	PushTime        string   `json:"push_time"`
	LastDigestDate  string   `json:"last_digest_date"`
	LastPushDate    string   `json:"last_push_date"`
}

type stateRequest struct {
	Field string `json:"field" binding:"required"`
	// Value sets the flag; when omitted the flag is toggled.
	Value *bool `json:"value"`
}

type itemState struct {
	UserID   int64 `json:"user_id"`
	ItemID   int64 `json:"item_id"`
	Read     bool  `json:"read"`
	Favorite bool  `json:"favorite"`
	Later    bool  `json:"later"`
	Blocked  bool  `json:"blocked"`
}

type summaryResponse struct {
	ItemID   int64  `json:"item_id"`
	Language string `json:"language"`
	Summary  string `json:"summary"`
}

func (s *Server) health(c *gin.Context) {
	version, err := s.pipe.SchemaVersion()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "schema_version": version})
}

func (s *Server) getBrief(c *gin.Context) {
	userID, ok := pathID(c, "user")
	if !ok {
		return
	}
	date := c.DefaultQuery("date", s.pipe.Today())
	if _, err := time.Parse(pipeline.DateLayout, date); err != nil {
		badRequest(c, "date must be YYYY-MM-DD")
		return
	}

	entries, err := s.pipe.Brief(c.Request.Context(), userID, date)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toBrief(userID, date, entries))
}

func (s *Server) refresh(c *gin.Context) {
	userID, ok := pathID(c, "user")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	d, err := s.pipe.Refresh(ctx, userID)
	if err != nil {
		s.fail(c, err)
		return
	}
	entries, err := s.pipe.Brief(ctx, userID, d.Date)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toBrief(userID, d.Date, entries))
}

func (s *Server) listDigests(c *gin.Context) {
	userID, ok := pathID(c, "user")
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}

	digests, err := s.pipe.History(c.Request.Context(), userID, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]digestInfo, 0, len(digests))
	for _, d := range digests {
		out = append(out, digestInfo{
			ID:        d.ID,
			Date:      d.Date,
			Language:  d.Language,
			Entries:   d.EntryCount,
			CreatedAt: d.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "digests": out})
}

func (s *Server) getPreferences(c *gin.Context) {
	userID, ok := pathID(c, "user")
	if !ok {
		return
	}
	pref, err := s.pipe.Preference(c.Request.Context(), userID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toPreferences(pref))
}

// putPreferences overlays the request body on the stored settings, so
// fields missing from the body keep their current values.
func (s *Server) putPreferences(c *gin.Context) {
	userID, ok := pathID(c, "user")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	current, err := s.pipe.Preference(ctx, userID)
	if err != nil {
		s.fail(c, err)
		return
	}

	body := toPreferences(current)
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	next := fromPreferences(body)
	next.UserID = userID
	next.LastDigestDate = current.LastDigestDate
	next.LastPushDate = current.LastPushDate

	saved, err := s.pipe.SavePreference(ctx, next)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toPreferences(saved))
}

func (s *Server) setItemState(c *gin.Context) {
	userID, ok := pathID(c, "user")
	if !ok {
		return
	}
	itemID, ok := pathID(c, "item")
	if !ok {
		return
	}
	var req stateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	field := model.ItemStateField(req.Field)
	var (
		st  model.UserItemState
		err error
	)
	if req.Value != nil {
		st, err = s.pipe.SetItemState(ctx, userID, itemID, field, *req.Value)
	} else {
		st, err = s.pipe.ToggleItemState(ctx, userID, itemID, field)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, itemState{
		UserID:   st.UserID,
		ItemID:   st.ItemID,
		Read:     st.Read,
		Favorite: st.Favorite,
		Later:    st.Later,
		Blocked:  st.Blocked,
	})
}

func (s *Server) getSummary(c *gin.Context) {
	itemID, ok := pathID(c, "item")
	if !ok {
		return
	}
	lang := c.Query("lang")
	summary, err := s.pipe.Summary(c.Request.Context(), itemID, lang)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summaryResponse{ItemID: itemID, Language: lang, Summary: summary})
}

func (s *Server) deleteSummary(c *gin.Context) {
	itemID, ok := pathID(c, "item")
	if !ok {
		return
	}
	if err := s.pipe.ClearSummary(c.Request.Context(), itemID, c.Query("lang")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// fail maps pipeline errors onto HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, storage.ErrUnknownStateField),
		errors.Is(err, preference.ErrTooManyKeywords),
		errors.Is(err, preference.ErrInvalidDailyLimit),
		errors.Is(err, preference.ErrInvalidPushTime):
		badRequest(c, err.Error())
	default:
		s.log.Error("api request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func toBrief(userID int64, date string, entries []model.BriefEntry) briefResponse {
	out := briefResponse{UserID: userID, Date: date, Entries: make([]briefEntry, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, briefEntry{
			Rank:    e.Rank,
			Score:   e.Score,
			ItemID:  e.ItemID,
			Title:   e.Title,
			Summary: e.Summary,
			URL:     e.URL,
			Source:  e.SourceName,
		})
	}
	return out
}

func toPreferences(p model.UserPreference) preferences {
	return preferences{
		UserID:          p.UserID,
		Enabled:         p.Enabled,
		Categories:      p.Categories,
		Language:        p.Language,
		Region:          p.Region,
		IncludeKeywords: p.IncludeKeywords,
		ExcludeKeywords: p.ExcludeKeywords,
		IncludeAcademic: p.IncludeAcademic,
		DailyLimit:      p.DailyLimit,
		PushTime:        p.PushTime,
		LastDigestDate:  p.LastDigestDate,
		LastPushDate:    p.LastPushDate,
	}
}

func fromPreferences(p preferences) model.UserPreference {
	return model.UserPreference{
		UserID:          p.UserID,
		Enabled:         p.Enabled,
		Categories:      p.Categories,
		Language:        p.Language,
		Region:          p.Region,
		IncludeKeywords: p.IncludeKeywords,
		ExcludeKeywords: p.ExcludeKeywords,
		IncludeAcademic: p.IncludeAcademic,
		DailyLimit:      p.DailyLimit,
		PushTime:        p.PushTime,
	}
}
