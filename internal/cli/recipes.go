package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/pantry"
	"github.com/unkn0wn-root/querycache/record"
)

func newRecipesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "recipes",
		Aliases: []string{"r"},
		Short:   "Browse, save and cook recipes",
	}
	cmd.AddCommand(
		newSuggestCmd(a),
		newRecipeSearchCmd(a),
		newRecipeShowCmd(a),
		newSaveCmd(a),
		newUnsaveCmd(a),
		newSavedCmd(a),
		newCookCmd(a),
		newHistoryCmd(a),
	)
	return cmd
}

// loadPages walks a pager until pages are loaded or no page follows.
func loadPages[P querycache.Paged](ctx context.Context, pg *querycache.Pager[P], pages int) (querycache.Infinite[P], error) {
	in, err := pg.First(ctx)
	if err != nil {
		return in, err
	}
	for len(in.Pages) < pages {
		more, err := pg.HasNext(ctx)
		if err != nil || !more {
			return in, err
		}
		if in, err = pg.Next(ctx); err != nil {
			return in, err
		}
	}
	return in, nil
}

func newSuggestCmd(a *app) *cobra.Command {
	var pages int
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Recipes that use what is in the pantry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, s *session) error {
				in, err := loadPages(ctx, s.svc.SuggestionPager(), pages)
				if err != nil {
					return err
				}
				var rs []record.RecipeSummary
				for _, p := range in.Pages {
					rs = append(rs, p.Items...)
				}
				if len(in.Pages) > 0 && !in.Pages[0].UsingPantryIngredients {
					fmt.Fprintln(a.stderr, "pantry is empty; showing popular recipes")
				}
				return s.out.recipes(rs)
			})
		},
	}
	cmd.Flags().IntVar(&pages, "pages", 1, "number of pages to load")
	return cmd
}

func newRecipeSearchCmd(a *app) *cobra.Command {
	var (
		pages int
		p     pantry.SearchParams
	)
	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Search recipes by text, diet or ready time",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				p.Q = args[0]
			}
			if !p.Enabled() {
				return fmt.Errorf("give search text, --diet or --max-ready")
			}
			return a.run(cmd, func(ctx context.Context, s *session) error {
				in, err := loadPages(ctx, s.svc.SearchPager(p), pages)
				if err != nil {
					return err
				}
				var rs []record.RecipeSummary
				for _, pg := range in.Pages {
					rs = append(rs, pg.Items...)
				}
				return s.out.recipes(rs)
			})
		},
	}
	cmd.Flags().IntVar(&pages, "pages", 1, "number of pages to load")
	cmd.Flags().StringVar(&p.Diet, "diet", "", "diet filter, e.g. vegetarian")
	cmd.Flags().IntVar(&p.MaxReadyTime, "max-ready", 0, "maximum ready time in minutes")
	return cmd
}

func newRecipeShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one recipe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, s *session) error {
				r, err := s.svc.Recipe(ctx, args[0])
				if err != nil {
					return err
				}
				return s.out.emit(r, []string{"FIELD", "VALUE"}, func() [][]string {
					rows := [][]string{
						{"id", r.ID},
						{"title", r.Title},
						{"source", r.Source},
						{"saved", yesNo(r.IsSaved)},
					}
					if r.Servings != nil {
						rows = append(rows, []string{"servings", strconv.Itoa(*r.Servings)})
					}
					if r.Difficulty != "" {
						rows = append(rows, []string{"difficulty", r.Difficulty})
					}
					if r.SourceURL != "" {
						rows = append(rows, []string{"url", r.SourceURL})
					}
					return rows
				})
			})
		},
	}
}

func newSaveCmd(a *app) *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "save <id>",
		Short: "Save a recipe; external recipes are imported first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, s *session) error {
				out, err := s.svc.SaveRecipe(ctx, args[0], notes)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "saved %s (%s)\n", out.Result.Recipe.Title, out.Result.Recipe.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "personal notes")
	return cmd
}

func newUnsaveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unsave <id>",
		Short: "Remove a recipe from the saved list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, s *session) error {
				if _, err := s.svc.UnsaveRecipe(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "unsaved %s\n", args[0])
				return nil
			})
		},
	}
}

func newSavedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "saved",
		Short: "List saved recipes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, s *session) error {
				list, err := s.svc.Saved(ctx)
				if err != nil {
					return err
				}
				return s.out.emit(list, []string{"ID", "TITLE", "NOTES"}, func() [][]string {
					rows := make([][]string, 0, len(list.Items))
					for _, sr := range list.Items {
						rows = append(rows, []string{sr.Recipe.ID, sr.Recipe.Title, sr.Notes})
					}
					return rows
				})
			})
		},
	}
}

func newCookCmd(a *app) *cobra.Command {
	var (
		rating int
		notes  string
	)
	cmd := &cobra.Command{
		Use:   "cook <recipe-id>",
		Short: "Record that a recipe was cooked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in record.CookingLogInput
			if cmd.Flags().Changed("rating") {
				if rating < 1 || rating > 5 {
					return fmt.Errorf("--rating must be between 1 and 5")
				}
				in.Rating = record.Ptr(rating)
			}
			if notes != "" {
				in.Notes = record.Ptr(notes)
			}
			return a.run(cmd, func(ctx context.Context, s *session) error {
				l, err := s.svc.LogCooking(ctx, args[0], in)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "logged %s at %s\n", l.RecipeTitle, l.CookedAt)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&rating, "rating", 0, "rating from 1 to 5")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List cooking history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, s *session) error {
				list, err := s.svc.History(ctx)
				if err != nil {
					return err
				}
				return s.out.emit(list, []string{"RECIPE", "COOKED", "RATING"}, func() [][]string {
					rows := make([][]string, 0, len(list.Items))
					for _, l := range list.Items {
						r := "-"
						if l.Rating != nil {
							r = strings.Repeat("*", *l.Rating)
						}
						rows = append(rows, []string{l.RecipeTitle, l.CookedAt, r})
					}
					return rows
				})
			})
		},
	}
}
