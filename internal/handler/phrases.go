package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vocabulary-sync/internal/middleware"
	"github.com/iliyamo/vocabulary-sync/internal/model"
	"github.com/iliyamo/vocabulary-sync/internal/service"
)

// PhraseHandler serves the phrase endpoints; phrases count against the
// same word limit as words.
type PhraseHandler struct {
	phrases *service.PhraseService
}

func NewPhraseHandler(phrases *service.PhraseService) *PhraseHandler {
	return &PhraseHandler{phrases: phrases}
}

type phraseReq struct {
	Word     string `json:"word" validate:"required,max=512"`
	Status   *int   `json:"status" validate:"omitempty,min=0,max=5"`
	Language string `json:"language"`
}

func (r phraseReq) model() model.Phrase {
	return model.Phrase{Word: r.Word, Status: r.Status, Language: r.Language}
}

type phraseBatchReq struct {
	Items      []phraseReq `json:"items" validate:"required,max=5000,dive"`
	Mode       string      `json:"mode" validate:"omitempty,oneof=merge replace"`
	ClearFirst bool        `json:"clearFirst"`
}

func (h *PhraseHandler) Create(c echo.Context) error {
	var req phraseReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	out, err := h.phrases.Upsert(c.Request().Context(), middleware.CurrentUser(c), req.model())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(outcomeStatus(out.Action), out)
}

func (h *PhraseHandler) Delete(c echo.Context) error {
	out, err := h.phrases.Delete(c.Request().Context(), middleware.CurrentUser(c), c.Param("word"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PhraseHandler) List(c echo.Context) error {
	limit, offset, err := page(c)
	if err != nil {
		return fail(c, err)
	}
	items, err := h.phrases.List(c.Request().Context(), middleware.CurrentUser(c), limit, offset)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "limit": limit, "offset": offset})
}

func (h *PhraseHandler) BatchSync(c echo.Context) error {
	var req phraseBatchReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	items := make([]model.Phrase, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, it.model())
	}
	res, err := h.phrases.BatchSync(c.Request().Context(), middleware.CurrentUser(c), service.BatchRequest[model.Phrase]{
		Items:      items,
		Mode:       req.Mode,
		ClearFirst: req.ClearFirst,
	})
	if err != nil {
		return batchFail(c, res, err)
	}
	return c.JSON(http.StatusOK, res)
}
