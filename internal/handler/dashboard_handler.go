package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/group-enroller/internal/domain"
	"github.com/kursadbilgin/group-enroller/internal/service"
)

// dashboardOutcomeRows caps the live outcome table per account.
const dashboardOutcomeRows = 50

//go:embed templates/dashboard.html
var templateFS embed.FS

var dashboardTemplate = template.Must(template.ParseFS(templateFS, "templates/dashboard.html"))

// DashboardSource feeds the dashboard page.
type DashboardSource interface {
	List() []service.Account
	RecentOutcomes(accountID string) ([]domain.EnrollmentRecord, error)
}

type dashboardAccount struct {
	service.Account
	// Outcomes holds the latest per-contact records, newest first.
	Outcomes []domain.EnrollmentRecord
}

type dashboardView struct {
	Accounts []dashboardAccount
}

func RegisterDashboardRoutes(router fiber.Router, source DashboardSource) {
	router.Get("/", DashboardHandler(source))
}

func DashboardHandler(source DashboardSource) fiber.Handler {
	return func(c *fiber.Ctx) error {
		view, err := buildDashboardView(source)
		if err != nil {
			return toHTTPError(err)
		}

		var buf bytes.Buffer
		if err := dashboardTemplate.Execute(&buf, view); err != nil {
			return fmt.Errorf("failed to render dashboard: %w", err)
		}

		c.Type("html", "utf-8")
		return c.Send(buf.Bytes())
	}
}

func buildDashboardView(source DashboardSource) (dashboardView, error) {
	accounts := source.List()
	view := dashboardView{Accounts: make([]dashboardAccount, 0, len(accounts))}
	for _, account := range accounts {
		records, err := source.RecentOutcomes(account.ID)
		if err != nil {
			return dashboardView{}, err
		}
		view.Accounts = append(view.Accounts, dashboardAccount{
			Account:  account,
			Outcomes: newestFirst(records, dashboardOutcomeRows),
		})
	}
	return view, nil
}

func newestFirst(records []domain.EnrollmentRecord, limit int) []domain.EnrollmentRecord {
	n := min(len(records), limit)
	out := make([]domain.EnrollmentRecord, 0, n)
	for i := len(records) - 1; i >= len(records)-n; i-- {
		out = append(out, records[i])
	}
	return out
}
