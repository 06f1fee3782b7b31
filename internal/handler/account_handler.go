package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/group-enroller/internal/domain"
	"github.com/kursadbilgin/group-enroller/internal/repository"
	"github.com/kursadbilgin/group-enroller/internal/service"
	"github.com/skip2/go-qrcode"
)

const qrCodeSize = 256

// AccountService is the registry surface the dashboard needs.
type AccountService interface {
	Add(ctx context.Context, accountID string) (service.Account, error)
	Get(accountID string) (service.Account, error)
	List() []service.Account
	HandleEvent(ctx context.Context, accountID string, event domain.SessionEvent) (service.Account, error)
	QRCode(accountID string) (string, error)
	RecentOutcomes(accountID string) ([]domain.EnrollmentRecord, error)
	Ledger(ctx context.Context, accountID string) (*domain.ProgressLedger, error)
	Outcomes(ctx context.Context, accountID string) ([]domain.EnrollmentRecord, error)
}

type AccountHandler struct {
	accounts   AccountService
	dispatcher service.BatchDispatcher
}

func NewAccountHandler(accounts AccountService, dispatcher service.BatchDispatcher) (*AccountHandler, error) {
	if accounts == nil {
		return nil, fmt.Errorf("account service is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("batch dispatcher is required")
	}
	return &AccountHandler{accounts: accounts, dispatcher: dispatcher}, nil
}

func RegisterAccountRoutes(router fiber.Router, accounts AccountService, dispatcher service.BatchDispatcher) error {
	h, err := NewAccountHandler(accounts, dispatcher)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/accounts", h.ListAccounts)
	v1.Post("/accounts", h.AddAccount)
	v1.Get("/accounts/:id", h.GetAccount)
	v1.Post("/accounts/:id/start", h.StartBatch)
	v1.Post("/accounts/:id/events", h.HandleEvent)
	v1.Get("/accounts/:id/qrcode", h.QRCode)
	v1.Get("/accounts/:id/state.json", h.State)
	v1.Get("/accounts/:id/statuses.csv", h.StatusesCSV)
	v1.Get("/accounts/:id/outcomes", h.ListOutcomes)

	return nil
}

type addAccountRequest struct {
	ID string `json:"id" form:"id"`
}

type sessionEventRequest struct {
	Type   string `json:"type"`
	QR     string `json:"qr"`
	Reason string `json:"reason"`
}

type accountDetailResponse struct {
	service.Account
	RecentOutcomes []domain.EnrollmentRecord `json:"recentOutcomes"`
}

type listAccountsResponse struct {
	Data []service.Account `json:"data"`
}

type listOutcomesResponse struct {
	Data []domain.EnrollmentRecord `json:"data"`
	Meta outcomeMeta               `json:"meta"`
}

type outcomeMeta struct {
	Total  int            `json:"total"`
	Counts map[string]int `json:"counts"`
}

func (h *AccountHandler) ListAccounts(c *fiber.Ctx) error {
	return c.JSON(listAccountsResponse{Data: h.accounts.List()})
}

func (h *AccountHandler) AddAccount(c *fiber.Ctx) error {
	var req addAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	account, err := h.accounts.Add(c.UserContext(), strings.TrimSpace(req.ID))
	if err != nil {
		return toHTTPError(err)
	}

	if isFormSubmission(c) {
		return c.Redirect("/", fiber.StatusSeeOther)
	}
	return c.Status(fiber.StatusCreated).JSON(account)
}

func (h *AccountHandler) GetAccount(c *fiber.Ctx) error {
	id := c.Params("id")
	account, err := h.accounts.Get(id)
	if err != nil {
		return toHTTPError(err)
	}
	recent, err := h.accounts.RecentOutcomes(id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(accountDetailResponse{Account: account, RecentOutcomes: recent})
}

// StartBatch requests one batch; the batch itself runs in the background.
func (h *AccountHandler) StartBatch(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.dispatcher.Dispatch(c.UserContext(), id, requestCorrelationID(c)); err != nil {
		return toHTTPError(err)
	}

	if isFormSubmission(c) {
		return c.Redirect("/", fiber.StatusSeeOther)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"accountId": id,
		"status":    "started",
	})
}

// HandleEvent receives session events pushed by the messaging bridge.
func (h *AccountHandler) HandleEvent(c *fiber.Ctx) error {
	var req sessionEventRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	eventType, err := domain.ParseSessionEventTypeFromString(req.Type)
	if err != nil {
		return toHTTPError(err)
	}

	account, err := h.accounts.HandleEvent(c.UserContext(), c.Params("id"), domain.SessionEvent{
		Type:   eventType,
		QRCode: req.QR,
		Reason: req.Reason,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(account)
}

func (h *AccountHandler) QRCode(c *fiber.Ctx) error {
	payload, err := h.accounts.QRCode(c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}

	png, err := qrcode.Encode(payload, qrcode.Medium, qrCodeSize)
	if err != nil {
		return fmt.Errorf("failed to render qr code: %w", err)
	}

	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Type("png")
	return c.Send(png)
}

// State serves the ledger document as persisted.
func (h *AccountHandler) State(c *fiber.Ctx) error {
	ledger, err := h.accounts.Ledger(c.UserContext(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(ledger)
}

func (h *AccountHandler) StatusesCSV(c *fiber.Ctx) error {
	id := c.Params("id")
	records, err := h.accounts.Outcomes(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}

	var buf bytes.Buffer
	if err := repository.WriteOutcomesCSV(&buf, records); err != nil {
		return fmt.Errorf("failed to encode outcomes: %w", err)
	}

	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s-statuses.csv"`, id))
	return c.Send(buf.Bytes())
}

func (h *AccountHandler) ListOutcomes(c *fiber.Ctx) error {
	records, err := h.accounts.Outcomes(c.UserContext(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}

	counts := make(map[string]int)
	for _, rec := range records {
		counts[rec.Status.String()]++
	}

	return c.JSON(listOutcomesResponse{
		Data: records,
		Meta: outcomeMeta{Total: len(records), Counts: counts},
	})
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func isFormSubmission(c *fiber.Ctx) bool {
	return strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationForm)
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrBatchInProgress),
		errors.Is(err, domain.ErrAccountNotReady):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
