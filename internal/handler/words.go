package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vocabulary-sync/internal/middleware"
	"github.com/iliyamo/vocabulary-sync/internal/model"
	"github.com/iliyamo/vocabulary-sync/internal/service"
)

// WordHandler serves the vocabulary word endpoints of a data node.
type WordHandler struct {
	words *service.WordService
}

func NewWordHandler(words *service.WordService) *WordHandler {
	return &WordHandler{words: words}
}

type sentenceReq struct {
	Sentence    string `json:"sentence" validate:"required"`
	Translation string `json:"translation"`
	URL         string `json:"url" validate:"omitempty,url"`
}

type wordReq struct {
	Word          string                      `json:"word" validate:"required,max=256"`
	Term          string                      `json:"term"`
	Translations  []string                    `json:"translations"`
	Tags          []string                    `json:"tags"`
	Sentences     []sentenceReq               `json:"sentences" validate:"dive"`
	Status        *int                        `json:"status" validate:"omitempty,min=0,max=5"`
	Language      string                      `json:"language"`
	StatusHistory map[string]model.StageTimes `json:"statusHistory"`
	IsCustom      bool                        `json:"isCustom"`
}

func sentences(in []sentenceReq) []model.Sentence {
	if in == nil {
		return nil
	}
	out := make([]model.Sentence, 0, len(in))
	for _, s := range in {
		out = append(out, model.Sentence{Text: s.Sentence, Translation: s.Translation, URL: s.URL})
	}
	return out
}

func (r wordReq) model() model.Word {
	return model.Word{
		Word:          r.Word,
		Term:          r.Term,
		Translations:  r.Translations,
		Tags:          r.Tags,
		Sentences:     sentences(r.Sentences),
		Status:        r.Status,
		Language:      r.Language,
		StatusHistory: r.StatusHistory,
		IsCustom:      r.IsCustom,
	}
}

type wordPatchReq struct {
	Term         *string        `json:"term"`
	Translations *[]string      `json:"translations"`
	Tags         *[]string      `json:"tags"`
	Sentences    *[]sentenceReq `json:"sentences"`
	Status       *int           `json:"status" validate:"omitempty,min=0,max=5"`
	Language     *string        `json:"language"`
	IsCustom     *bool          `json:"isCustom"`
}

func (r wordPatchReq) patch() service.WordPatch {
	p := service.WordPatch{
		Term:         r.Term,
		Translations: r.Translations,
		Tags:         r.Tags,
		Status:       r.Status,
		Language:     r.Language,
		IsCustom:     r.IsCustom,
	}
	if r.Sentences != nil {
		s := sentences(*r.Sentences)
		if s == nil {
			s = []model.Sentence{}
		}
		p.Sentences = &s
	}
	return p
}

type wordBatchReq struct {
	Items      []wordReq `json:"items" validate:"required,max=5000,dive"`
	Mode       string    `json:"mode" validate:"omitempty,oneof=merge replace"`
	ClearFirst bool      `json:"clearFirst"`
}

type batchGetReq struct {
	Words []string `json:"words" validate:"required,max=5000"`
}

func outcomeStatus(action string) int {
	if action == service.ActionCreated {
		return http.StatusCreated
	}
	return http.StatusOK
}

// Create adds a word or merges it into the stored one.
func (h *WordHandler) Create(c echo.Context) error {
	var req wordReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	out, err := h.words.Upsert(c.Request().Context(), middleware.CurrentUser(c), req.model())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(outcomeStatus(out.Action), out)
}

// Update overwrites the fields present in the body.
func (h *WordHandler) Update(c echo.Context) error {
	var req wordPatchReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	p := req.patch()
	out, err := h.words.Update(c.Request().Context(), middleware.CurrentUser(c), c.Param("word"),
		func(w *model.Word, now time.Time) error { return p.Apply(w, now) })
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// Delete removes a word and frees its quota slot.
func (h *WordHandler) Delete(c echo.Context) error {
	out, err := h.words.Delete(c.Request().Context(), middleware.CurrentUser(c), c.Param("word"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// Get returns one word.
func (h *WordHandler) Get(c echo.Context) error {
	w, err := h.words.Get(c.Request().Context(), middleware.CurrentUser(c), c.Param("word"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, w)
}

// List pages through the caller's words.
func (h *WordHandler) List(c echo.Context) error {
	limit, offset, err := page(c)
	if err != nil {
		return fail(c, err)
	}
	u := middleware.CurrentUser(c)
	items, err := h.words.List(c.Request().Context(), u, limit, offset)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "limit": limit, "offset": offset, "wordCount": u.WordCount})
}

// BatchSync reconciles an uploaded batch in merge or replace mode.
func (h *WordHandler) BatchSync(c echo.Context) error {
	var req wordBatchReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	items := make([]model.Word, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, it.model())
	}
	res, err := h.words.BatchSync(c.Request().Context(), middleware.CurrentUser(c), service.BatchRequest[model.Word]{
		Items:      items,
		Mode:       req.Mode,
		ClearFirst: req.ClearFirst,
	})
	if err != nil {
		return batchFail(c, res, err)
	}
	return c.JSON(http.StatusOK, res)
}

// BatchGet returns the stored words among the requested keys.
func (h *WordHandler) BatchGet(c echo.Context) error {
	var req batchGetReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	items, err := h.words.BatchGet(c.Request().Context(), middleware.CurrentUser(c), req.Words)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// batchFail reports a batch error.  When some records were already written
// the partial counts are returned with the error so the client can resume.
func batchFail(c echo.Context, res service.BatchResult, err error) error {
	if res.Created+res.Updated+res.Deleted == 0 {
		return fail(c, err)
	}
	c.Set(middleware.CtxError, err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "batch partially applied", "result": res})
}
