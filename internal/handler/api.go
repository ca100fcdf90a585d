package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/promo-pricing/internal/domain/catalog"
	"github.com/xenking/promo-pricing/internal/domain/promo"
	"github.com/xenking/promo-pricing/internal/domain/selection"
)

func (h *Handler) listPackages(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	def := h.catalog.Default().ID

	pkgs := h.catalog.List()
	out := make([]packageView, 0, len(pkgs))
	for _, p := range pkgs {
		codes := []string{}
		for _, c := range h.codes.ListApplicable(p.ID, now) {
			codes = append(codes, c.Code)
		}
		out = append(out, packageView{
			ID:      p.ID,
			Name:    p.Name,
			Price:   p.Price,
			Default: p.ID == def,
			Codes:   codes,
		})
	}
	writeJSON(w, r, http.StatusOK, out)
}

// openSession handles a page load: the controller is rebuilt and the
// persisted discount restored.
func (h *Handler) openSession(w http.ResponseWriter, r *http.Request) {
	v := h.visitor(w, r, true)
	writeJSON(w, r, http.StatusOK, newStateView(v.feed.Snapshot()))
}

func (h *Handler) getState(w http.ResponseWriter, r *http.Request) {
	v := h.visitor(w, r, false)
	writeJSON(w, r, http.StatusOK, newStateView(v.feed.Snapshot()))
}

func (h *Handler) selectPackage(w http.ResponseWriter, r *http.Request) {
	var req packageRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	id, err := catalog.ParseID(req.Package)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	v := h.visitor(w, r, false)
	if err := v.ctrl.SelectPackage(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newStateView(v.feed.Snapshot()))
}

func (h *Handler) submitCode(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	v := h.visitor(w, r, false)
	ctx := r.Context()

	// The submission outlives a client that stops waiting.
	sub, err := v.ctrl.SubmitCode(context.WithoutCancel(ctx), req.Code)
	if err == nil {
		_, err = sub.Wait(ctx)
	}
	if err != nil {
		outcome := submissionOutcome(err)
		h.metrics.submitted(ctx, outcome)
		if outcome == outcomeAbandoned {
			zctx.From(ctx).Debug("Client left before code resolved", zap.Error(err))
			return
		}
		h.fail(w, r, err)
		return
	}

	h.metrics.submitted(ctx, outcomeApplied)
	writeJSON(w, r, http.StatusOK, newStateView(v.feed.Snapshot()))
}

func (h *Handler) clearDiscount(w http.ResponseWriter, r *http.Request) {
	v := h.visitor(w, r, false)
	v.ctrl.ClearDiscount(r.Context())
	writeJSON(w, r, http.StatusOK, newStateView(v.feed.Snapshot()))
}

func (h *Handler) contact(w http.ResponseWriter, r *http.Request) {
	v := h.visitor(w, r, false)
	writeJSON(w, r, http.StatusOK, contactView{URL: v.ctrl.ContactURL()})
}

func (h *Handler) contactPackage(w http.ResponseWriter, r *http.Request) {
	id, err := catalog.ParseID(chi.URLParam(r, "package"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	v := h.visitor(w, r, false)
	link, err := v.ctrl.ContactPackageURL(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, contactView{URL: link})
}

func submissionOutcome(err error) string {
	switch {
	case errors.Is(err, promo.ErrEmptyInput):
		return outcomeEmpty
	case errors.Is(err, promo.ErrInapplicableCode):
		return outcomeInapplicable
	case errors.Is(err, promo.ErrUnknownCode):
		return outcomeUnknown
	case errors.Is(err, selection.ErrSubmissionPending):
		return outcomePending
	case errors.Is(err, selection.ErrClosed):
		return outcomeCancelled
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return outcomeAbandoned
	default:
		return outcomeFailed
	}
}

// fail maps domain errors to responses. Code rejections carry the same
// localized text the visitor sees as a notification.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	msgs := h.cfg.Selection.Messages
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "unknown_package", err.Error())
	case errors.Is(err, selection.ErrSubmissionPending):
		writeError(w, r, http.StatusConflict, "submission_pending", err.Error())
	case errors.Is(err, selection.ErrClosed):
		writeError(w, r, http.StatusConflict, "submission_cancelled", "submission cancelled by page reload")
	case errors.Is(err, promo.ErrEmptyInput):
		writeError(w, r, http.StatusUnprocessableEntity, "empty_code", msgs.Reject(err))
	case errors.Is(err, promo.ErrInapplicableCode):
		writeError(w, r, http.StatusUnprocessableEntity, "inapplicable_code", msgs.Reject(err))
	case errors.Is(err, promo.ErrUnknownCode):
		writeError(w, r, http.StatusUnprocessableEntity, "unknown_code", msgs.Reject(err))
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal", "internal server error")
	}
}
