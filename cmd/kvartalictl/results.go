package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Clark-Hu/kvartali/internal/aggregate"
	"github.com/Clark-Hu/kvartali/internal/domain"
	"github.com/Clark-Hu/kvartali/internal/pipeline"
	"github.com/Clark-Hu/kvartali/internal/repository"
	"github.com/Clark-Hu/kvartali/internal/urlstate"
)

type resultsFlags struct {
	city      string
	category  string
	selection string
	sort      string
	minVotes  int
	minRating float64
	limit     int
}

func newResultsCmd() *cobra.Command {
	var f resultsFlags
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Print aggregated ratings for one scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := domain.ParseCategory(f.category)
			if err != nil {
				return err
			}
			sortBy, err := pipeline.ParseSort(f.sort)
			if err != nil {
				return err
			}
			if f.minVotes < 0 || f.minRating < 0 || f.minRating > 5 {
				return fmt.Errorf("thresholds out of range")
			}

			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			records, err := repository.New(st).Ratings.ListAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("list ratings: %w", err)
			}
			scope := urlstate.Scope{City: f.city, Category: category, Selection: f.selection}.Normalize()
			groups := aggregate.Aggregate(records, aggregate.Scope{Category: scope.Category, City: scope.City})
			result := pipeline.Run(groups, scope.Category, pipeline.Options{
				Selection: scope.Selection,
				SortBy:    sortBy,
				MinVotes:  f.minVotes,
				MinRating: f.minRating,
			})
			return printResults(cmd.OutOrStdout(), scope, result, f.limit)
		},
	}
	cmd.Flags().StringVar(&f.city, "city", domain.DefaultCity, "City to aggregate")
	cmd.Flags().StringVar(&f.category, "category", string(domain.CategoryNeighborhood), "neighborhood, childcare, doctors or dentists")
	cmd.Flags().StringVar(&f.selection, "neighborhood", "", "Only this location, or specialty for doctors")
	cmd.Flags().StringVar(&f.sort, "sort", string(pipeline.DefaultSort), "Result ordering")
	cmd.Flags().IntVar(&f.minVotes, "min-votes", 0, "Minimum number of votes")
	cmd.Flags().Float64Var(&f.minRating, "min-rating", 0, "Minimum overall rating (0-5)")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "Print at most this many rows (0 prints all)")
	return cmd
}

func printResults(w io.Writer, scope urlstate.Scope, result pipeline.Result, limit int) error {
	fmt.Fprintf(w, "%s  (%d)\n", urlstate.BuildURL(scope), result.Count)
	if msg := result.Message(); msg != "" {
		_, err := fmt.Fprintln(w, msg)
		return err
	}

	kind := scope.Category.Kind()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := []string{"#", "LOCATION", "VOTES", "OVERALL"}
	if len(kind.Criteria) > 1 {
		header = append(header, kind.Criteria...)
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for i, g := range result.Groups {
		if limit > 0 && i >= limit {
			break
		}
		row := []string{
			fmt.Sprint(i + 1),
			g.LocationName,
			fmt.Sprint(g.VoteCount),
			fmt.Sprintf("%.1f", g.Overall),
		}
		if len(kind.Criteria) > 1 {
			for _, c := range kind.Criteria {
				row = append(row, fmt.Sprintf("%.1f", g.CriterionAverages[c]))
			}
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}
