package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	s3blob "github.com/oddsworks/parimutuel/internal/blob/s3"
	"github.com/oddsworks/parimutuel/internal/domain"
)

// AdminService defines the privileged engine operations.
type AdminService interface {
	UpdateParams(ctx context.Context, actor string, params domain.Params) error
	Halt(ctx context.Context, actor string) error
	Resume(ctx context.Context, actor string) error
	AddAdmin(ctx context.Context, actor, admin string) error
	RemoveAdmin(ctx context.Context, actor, admin string) error
	SetAssets(ctx context.Context, actor string, assets []string) error
	RegisterPriceFeed(ctx context.Context, actor, asset, feed string) error
	CancelRound(ctx context.Context, actor string, roundID uint64) error
	Admins(ctx context.Context) ([]string, error)

	PendingTransfers(ctx context.Context, limit int) ([]domain.TransferInstruction, error)
	MarkTransferExecuted(ctx context.Context, id string) error
}

// ArchiveService drives history archival to object storage.
type ArchiveService interface {
	ArchiveRounds(ctx context.Context, before time.Time) (int64, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// ArchiveBrowser lists previously written archive objects.
type ArchiveBrowser interface {
	List(ctx context.Context, prefix string) ([]s3blob.BlobInfo, error)
}

// AdminHandler serves the privileged operation endpoints. The auth middleware
// guards the routes; the engine additionally checks that the acting account
// is in the admin set.
type AdminHandler struct {
	svc     AdminService
	archive ArchiveService // nil when object storage is not configured
	browser ArchiveBrowser // nil when object storage is not configured
	logger  *slog.Logger
}

// NewAdminHandler creates an AdminHandler. archive and browser may be nil.
func NewAdminHandler(svc AdminService, archive ArchiveService, browser ArchiveBrowser, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		svc:     svc,
		archive: archive,
		browser: browser,
		logger:  logHandler(logger, "admin"),
	}
}

type feeRecipientPayload struct {
	Account  string `json:"account" validate:"required"`
	RatioBps uint64 `json:"ratio_bps" validate:"required"`
}

type updateParamsRequest struct {
	Actor            string                `json:"actor" validate:"required"`
	MinStake         uint64                `json:"min_stake"`
	FeeRateBps       uint64                `json:"fee_rate_bps"`
	Token            string                `json:"token" validate:"required"`
	RoundDurationSec int64                 `json:"round_duration_sec" validate:"required,gt=0"`
	MaxStalenessSec  int64                 `json:"max_staleness_sec" validate:"required,gt=0"`
	ExpPerUnitStaked uint64                `json:"exp_per_unit_staked"`
	ExpPerUnitWon    uint64                `json:"exp_per_unit_won"`
	FeeRecipients    []feeRecipientPayload `json:"fee_recipients" validate:"dive"`
}

// UpdateParams replaces the engine parameters.
// PUT /api/admin/params
func (h *AdminHandler) UpdateParams(w http.ResponseWriter, r *http.Request) {
	var req updateParamsRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	recipients := make([]domain.FeeRecipient, 0, len(req.FeeRecipients))
	for _, fr := range req.FeeRecipients {
		recipients = append(recipients, domain.FeeRecipient{Account: fr.Account, RatioBps: fr.RatioBps})
	}
	params := domain.Params{
		MinStake:         req.MinStake,
		FeeRateBps:       req.FeeRateBps,
		Token:            req.Token,
		RoundDuration:    time.Duration(req.RoundDurationSec) * time.Second,
		MaxStaleness:     time.Duration(req.MaxStalenessSec) * time.Second,
		ExpPerUnitStaked: req.ExpPerUnitStaked,
		ExpPerUnitWon:    req.ExpPerUnitWon,
		FeeRecipients:    recipients,
	}

	if err := h.svc.UpdateParams(r.Context(), req.Actor, params); err != nil {
		h.fail(w, r, "update params", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type actorRequest struct {
	Actor string `json:"actor" validate:"required"`
}

// Halt stops all staking until Resume.
// POST /api/admin/halt
func (h *AdminHandler) Halt(w http.ResponseWriter, r *http.Request) {
	h.haltResume(w, r, "halted", h.svc.Halt)
}

// Resume lifts a halt.
// POST /api/admin/resume
func (h *AdminHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.haltResume(w, r, "resumed", h.svc.Resume)
}

func (h *AdminHandler) haltResume(w http.ResponseWriter, r *http.Request, verb string, op func(context.Context, string) error) {
	var req actorRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := op(r.Context(), req.Actor); err != nil {
		h.fail(w, r, verb, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": verb})
}

// ListAdmins returns the current admin set.
// GET /api/admin/admins
func (h *AdminHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := h.svc.Admins(r.Context())
	if err != nil {
		h.fail(w, r, "list admins", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"admins": admins})
}

type adminChangeRequest struct {
	Actor string `json:"actor" validate:"required"`
	Admin string `json:"admin" validate:"required"`
}

// AddAdmin grants admin rights to an account. Idempotent.
// POST /api/admin/admins
func (h *AdminHandler) AddAdmin(w http.ResponseWriter, r *http.Request) {
	var req adminChangeRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.svc.AddAdmin(r.Context(), req.Actor, req.Admin); err != nil {
		h.fail(w, r, "add admin", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

// RemoveAdmin revokes admin rights. The last admin cannot be removed.
// POST /api/admin/admins/remove
func (h *AdminHandler) RemoveAdmin(w http.ResponseWriter, r *http.Request) {
	var req adminChangeRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.svc.RemoveAdmin(r.Context(), req.Actor, req.Admin); err != nil {
		h.fail(w, r, "remove admin", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

type setAssetsRequest struct {
	Actor  string   `json:"actor" validate:"required"`
	Assets []string `json:"assets" validate:"min=1"`
}

// SetAssets replaces the asset rotation list. Every asset must already have a
// registered price feed.
// PUT /api/admin/assets
func (h *AdminHandler) SetAssets(w http.ResponseWriter, r *http.Request) {
	var req setAssetsRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.svc.SetAssets(r.Context(), req.Actor, req.Assets); err != nil {
		h.fail(w, r, "set assets", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type registerFeedRequest struct {
	Actor string `json:"actor" validate:"required"`
	Asset string `json:"asset" validate:"required"`
	Feed  string `json:"feed" validate:"required"`
}

// RegisterFeed maps an asset to a price feed key.
// POST /api/admin/feeds
func (h *AdminHandler) RegisterFeed(w http.ResponseWriter, r *http.Request) {
	var req registerFeedRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.svc.RegisterPriceFeed(r.Context(), req.Actor, req.Asset, req.Feed); err != nil {
		h.fail(w, r, "register feed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "registered"})
}

// CancelRound cancels a bidding or live round; every stake in it becomes
// refundable.
// POST /api/admin/rounds/{id}/cancel
func (h *AdminHandler) CancelRound(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}
	var req actorRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.svc.CancelRound(r.Context(), req.Actor, id); err != nil {
		h.fail(w, r, "cancel round", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "cancelled", "round_id": id})
}

// ListTransfers returns pending outbox transfer instructions for the host
// executor.
// GET /api/admin/transfers?limit=
func (h *AdminHandler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	transfers, err := h.svc.PendingTransfers(r.Context(), queryLimit(r))
	if err != nil {
		h.fail(w, r, "list transfers", err)
		return
	}
	if transfers == nil {
		transfers = []domain.TransferInstruction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transfers": transfers})
}

// MarkTransferExecuted acknowledges that a transfer has been executed.
// POST /api/admin/transfers/{id}/executed
func (h *AdminHandler) MarkTransferExecuted(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing transfer id")
		return
	}
	if err := h.svc.MarkTransferExecuted(r.Context(), id); err != nil {
		h.fail(w, r, "mark transfer executed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "executed", "transfer_id": id})
}

type archiveRequest struct {
	Before time.Time `json:"before" validate:"required"`
	Prune  bool      `json:"prune"`
}

// Archive exports finished rounds that closed before the cutoff to object
// storage, optionally pruning them from the primary store afterwards.
// POST /api/admin/archive
func (h *AdminHandler) Archive(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "object storage is not configured")
		return
	}
	var req archiveRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	archived, err := h.archive.ArchiveRounds(r.Context(), req.Before)
	if err != nil {
		h.fail(w, r, "archive rounds", err)
		return
	}
	var pruned int64
	if req.Prune && archived > 0 {
		if pruned, err = h.archive.Prune(r.Context(), req.Before); err != nil {
			h.fail(w, r, "prune rounds", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"archived": archived,
		"pruned":   pruned,
	})
}

// ListArchives lists previously written archive objects.
// GET /api/admin/archives?prefix=
func (h *AdminHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	if h.browser == nil {
		writeError(w, http.StatusServiceUnavailable, "object storage is not configured")
		return
	}
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = "archive/"
	}
	infos, err := h.browser.List(r.Context(), prefix)
	if err != nil {
		h.fail(w, r, "list archives", err)
		return
	}
	if infos == nil {
		infos = []s3blob.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": infos})
}

func (h *AdminHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := engineStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), op+" failed", slog.String("error", err.Error()))
		writeError(w, status, "failed to "+op)
		return
	}
	writeError(w, status, err.Error())
}
