package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/querycache/record"
)

func newMeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "me",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, s *session) error {
				u, err := s.svc.Me(ctx)
				if err != nil {
					return err
				}
				return printUser(s.out, u)
			})
		},
	}
	cmd.AddCommand(newMeUpdateCmd(a))
	return cmd
}

func newMeUpdateCmd(a *app) *cobra.Command {
	var (
		name      string
		diets     []string
		household int
	)
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update profile fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var p record.UserPatch
			if cmd.Flags().Changed("name") {
				p.DisplayName = record.Ptr(name)
			}
			if cmd.Flags().Changed("diet") {
				p.DietaryPrefs = record.Ptr(diets)
			}
			if cmd.Flags().Changed("household") {
				if household < 1 {
					return fmt.Errorf("--household must be >= 1")
				}
				p.HouseholdSize = record.Ptr(household)
			}
			if p.Empty() {
				return fmt.Errorf("nothing to update; set at least one of --name, --diet, --household")
			}
			return a.run(cmd, func(ctx context.Context, s *session) error {
				u, err := s.svc.UpdateProfile(ctx, p)
				if err != nil {
					return err
				}
				return printUser(s.out, u)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringSliceVar(&diets, "diet", nil, "dietary preferences (repeatable or comma separated)")
	cmd.Flags().IntVar(&household, "household", 0, "household size")
	return cmd
}

func printUser(p *printer, u record.User) error {
	return p.emit(u, []string{"FIELD", "VALUE"}, func() [][]string {
		return [][]string{
			{"id", u.ID},
			{"email", u.Email},
			{"name", u.DisplayName},
			{"diet", strings.Join(u.DietaryPrefs, ",")},
			{"household", strconv.Itoa(u.HouseholdSize)},
		}
	})
}
