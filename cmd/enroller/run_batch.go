package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/kursadbilgin/group-enroller/internal/domain"
	"github.com/spf13/cobra"
)

func runBatchCommand(campaignFile *string) *cobra.Command {
	var accountID string

	cmd := &cobra.Command{
		Use:   "run-batch",
		Short: "Run one batch for an already paired account and print its summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *campaignFile)
			if err != nil {
				return err
			}
			defer a.close()

			summary, err := a.runBatch(ctx, accountID)
			if summary != nil {
				printSummary(cmd.OutOrStdout(), summary)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "account id to run")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func (a *app) runBatch(ctx context.Context, accountID string) (*domain.BatchSummary, error) {
	if err := domain.ValidateAccountID(accountID); err != nil {
		return nil, err
	}

	runtime, err := a.buildRuntime(accountID)
	if err != nil {
		return nil, err
	}

	if a.locker != nil {
		unlock, err := a.locker.TryLock(ctx, accountID)
		if err != nil {
			return nil, err
		}
		defer func() {
			_ = unlock(context.WithoutCancel(ctx))
		}()
	}

	return runtime.Runner.RunBatch(ctx)
}

func printSummary(w io.Writer, s *domain.BatchSummary) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	bold.Fprintf(w, "Batch %s for %s\n", s.RunID, s.AccountID)
	fmt.Fprintf(w, "  offset:               %d -> %d\n", s.StartOffset, s.EndOffset)
	if s.GroupID != "" {
		created := ""
		if s.GroupCreated {
			created = color.New(color.FgCyan).Sprint(" (new)")
		}
		fmt.Fprintf(w, "  group:                %s%s\n", s.GroupID, created)
	}
	fmt.Fprintf(w, "  processed:            %d\n", s.Total)
	fmt.Fprintf(w, "  %-21s %s\n", domain.EnrollmentStatusValid.String()+":", green.Sprint(s.Valid))
	fmt.Fprintf(w, "  %-21s %s\n", domain.EnrollmentStatusPrivateInviteOnly.String()+":", yellow.Sprint(s.PrivateInviteOnly))
	fmt.Fprintf(w, "  %-21s %s\n", domain.EnrollmentStatusUnregistered.String()+":", yellow.Sprint(s.Unregistered))
	fmt.Fprintf(w, "  %-21s %s\n", domain.EnrollmentStatusUnknownError.String()+":", red.Sprint(s.UnknownError))
	fmt.Fprintf(w, "  invites sent:         %d\n", s.InvitesSent)
	if !s.FinishedAt.IsZero() {
		fmt.Fprintf(w, "  duration:             %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	}
}
