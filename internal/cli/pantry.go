package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/querycache/pantry"
	"github.com/unkn0wn-root/querycache/record"
)

func newSummaryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show pantry totals per category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, s *session) error {
				sum, err := s.svc.Summary(ctx)
				if err != nil {
					return err
				}
				return s.out.emit(sum, []string{"CATEGORY", "AVAILABLE", "EXPIRING", "EXPIRED", "TOTAL"}, func() [][]string {
					rows := make([][]string, 0, len(sum.Categories)+1)
					for _, c := range sum.Categories {
						rows = append(rows, []string{c.CategoryName,
							strconv.Itoa(c.AvailableCount), strconv.Itoa(c.ExpiringSoonCount),
							strconv.Itoa(c.ExpiredCount), strconv.Itoa(c.TotalCount)})
					}
					return append(rows, []string{"all",
						strconv.Itoa(sum.TotalAvailable), strconv.Itoa(sum.TotalExpiringSoon),
						strconv.Itoa(sum.TotalExpired), strconv.Itoa(sum.TotalItems)})
				})
			})
		},
	}
}

type itemFlags struct {
	status   string
	category int
	expiring int
	page     int
}

func (f *itemFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.status, "status", "", "filter by status: available|expired|used_up")
	cmd.Flags().IntVar(&f.category, "category", 0, "filter by category id")
	cmd.Flags().IntVar(&f.expiring, "expiring-within", 0, "only items expiring within this many days")
	cmd.Flags().IntVar(&f.page, "page", 0, "result page")
}

func (f *itemFlags) filters() pantry.ItemFilters {
	out := pantry.ItemFilters{Status: f.status, Page: f.page}
	if f.category > 0 {
		out.Category = record.Ptr(f.category)
	}
	if f.expiring > 0 {
		out.ExpiringWithin = record.Ptr(f.expiring)
	}
	return out
}

func newItemsCmd(a *app) *cobra.Command {
	var f itemFlags
	cmd := &cobra.Command{
		Use:   "items",
		Short: "List pantry items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, s *session) error {
				list, err := s.svc.Items(ctx, f.filters())
				if err != nil {
					return err
				}
				return s.out.items(list.Items, list.Count)
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newFindCmd(a *app) *cobra.Command {
	var f itemFlags
	cmd := &cobra.Command{
		Use:   "find <text>",
		Short: "Search pantry items by ingredient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, s *session) error {
				list, ok, err := s.svc.Search(ctx, args[0], f.filters())
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("search text is blank")
				}
				return s.out.items(list.Items, list.Count)
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newExpiringCmd(a *app) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "expiring",
		Short: "List items about to expire",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, s *session) error {
				items, err := s.svc.Expiring(ctx, days)
				if err != nil {
					return err
				}
				return s.out.items(items, len(items))
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "window in days (default from config)")
	return cmd
}

func newAddCmd(a *app) *cobra.Command {
	var (
		qty          float64
		unit, expiry string
		categoryHint string
	)
	cmd := &cobra.Command{
		Use:   "add <ingredient>",
		Short: "Add an ingredient to the pantry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := record.PantryItemInput{IngredientName: args[0]}
			if cmd.Flags().Changed("qty") {
				in.Quantity = record.Q(qty)
			}
			if unit != "" {
				in.Unit = record.Ptr(unit)
			}
			if expiry != "" {
				in.ExpiryDate = record.Ptr(expiry)
			}
			if categoryHint != "" {
				in.CategoryHint = record.Ptr(categoryHint)
			}
			return a.run(cmd, func(ctx context.Context, s *session) error {
				res, err := s.svc.AddItem(ctx, in)
				if err != nil {
					return err
				}
				if !res.Created {
					fmt.Fprintf(a.stderr, "merged into existing item %s\n", res.Item.ID)
				}
				return s.out.items([]record.PantryItem{res.Item}, 1)
			})
		},
	}
	cmd.Flags().Float64Var(&qty, "qty", 0, "quantity")
	cmd.Flags().StringVar(&unit, "unit", "", "unit of measure")
	cmd.Flags().StringVar(&expiry, "expiry", "", "expiry date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&categoryHint, "category", "", "category hint for a new ingredient")
	return cmd
}

func newUpdateCmd(a *app) *cobra.Command {
	var (
		qty                  float64
		unit, expiry, status string
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Patch fields of a pantry item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p record.PantryItemPatch
			if cmd.Flags().Changed("qty") {
				p.Quantity = record.Q(qty)
			}
			if cmd.Flags().Changed("unit") {
				p.Unit = record.Ptr(unit)
			}
			if cmd.Flags().Changed("expiry") {
				p.ExpiryDate = record.Ptr(expiry)
			}
			if cmd.Flags().Changed("status") {
				p.Status = record.Ptr(status)
			}
			if p.Empty() {
				return fmt.Errorf("nothing to update; set at least one of --qty, --unit, --expiry, --status")
			}
			return a.run(cmd, func(ctx context.Context, s *session) error {
				out, err := s.svc.UpdateItem(ctx, args[0], p)
				if err != nil {
					return err
				}
				return s.out.items([]record.PantryItem{out.Result}, 1)
			})
		},
	}
	cmd.Flags().Float64Var(&qty, "qty", 0, "new quantity")
	cmd.Flags().StringVar(&unit, "unit", "", "new unit")
	cmd.Flags().StringVar(&expiry, "expiry", "", "new expiry date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&status, "status", "", "new status: available|expired|used_up")
	return cmd
}

func newUseCmd(a *app) *cobra.Command {
	var qty float64
	cmd := &cobra.Command{
		Use:   "use <id>",
		Short: "Consume some or all of a pantry item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var q *record.Quantity
			if cmd.Flags().Changed("qty") {
				q = record.Q(qty)
			}
			return a.run(cmd, func(ctx context.Context, s *session) error {
				it, err := s.svc.UseItem(ctx, args[0], q)
				if err != nil {
					return err
				}
				return s.out.items([]record.PantryItem{it}, 1)
			})
		},
	}
	cmd.Flags().Float64Var(&qty, "qty", 0, "quantity used (default: all)")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id> [id...]",
		Short: "Remove pantry items",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, s *session) error {
				if len(args) == 1 {
					if err := s.svc.DeleteItem(ctx, args[0]); err != nil {
						return err
					}
					fmt.Fprintf(a.stdout, "deleted %s\n", args[0])
					return nil
				}
				res, err := s.svc.BulkDelete(ctx, args)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "deleted %d items\n", res.DeletedCount)
				return nil
			})
		},
	}
}
