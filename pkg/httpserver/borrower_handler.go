package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/mselser95/lending-liquidator/pkg/ledger"
	"github.com/mselser95/lending-liquidator/pkg/types"
	"go.uber.org/zap"
)

// BorrowerReporter exposes the current view of watched borrowers.
type BorrowerReporter interface {
	Reports() []types.BorrowerReport
	Report(wallet string) (types.BorrowerReport, bool)
}

// BorrowerHandler handles HTTP requests for borrower health data.
type BorrowerHandler struct {
	reporter BorrowerReporter
	logger   *zap.Logger
}

// NewBorrowerHandler creates a new borrower handler.
func NewBorrowerHandler(reporter BorrowerReporter, logger *zap.Logger) *BorrowerHandler {
	return &BorrowerHandler{
		reporter: reporter,
		logger:   logger,
	}
}

// BorrowersResponse is the body of GET /api/borrowers.
type BorrowersResponse struct {
	Count     int                    `json:"count"`
	Unsafe    int                    `json:"unsafe"`
	Borrowers []types.BorrowerReport `json:"borrowers"`
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HandleList handles GET /api/borrowers. With ?unsafe=true only borrowers
// above a health ratio of 1 are listed.
func (h *BorrowerHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	reports := h.reporter.Reports()
	onlyUnsafe := r.URL.Query().Get("unsafe") == "true"

	resp := BorrowersResponse{Borrowers: make([]types.BorrowerReport, 0, len(reports))}
	for _, report := range reports {
		if report.Unsafe {
			resp.Unsafe++
		}
		if onlyUnsafe && !report.Unsafe {
			continue
		}
		resp.Borrowers = append(resp.Borrowers, report)
	}
	resp.Count = len(resp.Borrowers)

	h.writeJSON(w, http.StatusOK, resp)
}

// HandleGet handles GET /api/borrowers/{wallet}.
func (h *BorrowerHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	wallet := chi.URLParam(r, "wallet")

	_, err := ledger.ParseAddress(wallet)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid wallet address"})
		return
	}

	h.logger.Debug("borrower-request-received", zap.String("wallet", wallet))

	report, ok := h.reporter.Report(wallet)
	if !ok {
		h.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "borrower not watched"})
		return
	}

	h.writeJSON(w, http.StatusOK, report)
}

func (h *BorrowerHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}
