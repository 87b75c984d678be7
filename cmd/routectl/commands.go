package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/routebook/internal/route/catalog"
	"github.com/example/routebook/internal/route/domain"
)

type routeRow struct {
	domain.Route
	Difficulty domain.Difficulty `json:"difficulty"`
	HasLiked   bool              `json:"has_liked"`
}

func newListCmd(current func() *app) *cobra.Command {
	var q catalog.Query
	var sortKey string
	var lat, lon float64

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List routes with optional search, filters and sorting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := current()
			q.Sort = catalog.SortKey(sortKey)
			if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon") {
				if p := (domain.GeoPoint{Lat: lat, Lon: lon}); p.Valid() {
					q.Location = &p
				}
			}
			res := a.catalog.Query(q)
			if res.Status != "" {
				fmt.Fprintln(a.errOut, res.Status)
			}
			return a.printRoutes(cmd, res.Routes)
		},
	}
	cmd.Flags().StringVarP(&q.Search, "search", "s", "", "case-insensitive name search")
	cmd.Flags().StringVar(&q.Type, "type", catalog.FilterAll, "activity type, or all")
	cmd.Flags().StringVar(&q.Difficulty, "difficulty", catalog.FilterAll, "Easy, Moderate, Hard, or all")
	cmd.Flags().StringVar(&sortKey, "sort", "", "likes, distance or nearMe")
	cmd.Flags().Float64Var(&lat, "lat", 0, "your latitude, for --sort nearMe")
	cmd.Flags().Float64Var(&lon, "lon", 0, "your longitude, for --sort nearMe")
	return cmd
}

func newShowCmd(current func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one route",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid route id %q", args[0])
			}
			route, err := a.catalog.Get(id)
			if err != nil {
				return fmt.Errorf("route %d: %w", id, err)
			}
			return a.printRoutes(cmd, []domain.Route{route})
		},
	}
}

func newLikeCmd(current func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "like <id>",
		Short: "Like a route once from this profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid route id %q", args[0])
			}
			count, accepted, err := a.likes.RecordLike(cmd.Context(), a.clientID, id)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return json.NewEncoder(a.out).Encode(map[string]any{"likes": count, "accepted": accepted})
			}
			if accepted {
				fmt.Fprintf(a.out, "liked route %d (%d likes)\n", id, count)
			} else {
				fmt.Fprintf(a.out, "route %d not liked again (%d likes)\n", id, count)
			}
			return nil
		},
	}
}

func (a *app) printRoutes(cmd *cobra.Command, routes []domain.Route) error {
	rows := make([]routeRow, 0, len(routes))
	for _, r := range routes {
		rows = append(rows, routeRow{
			Route:      r,
			Difficulty: r.Difficulty(),
			HasLiked:   a.likes.HasVoted(cmd.Context(), a.clientID, r.ID),
		})
	}
	if a.jsonOut {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tKM\tELEV M\tDIFFICULTY\tLIKES\tLIKED")
	for _, r := range rows {
		liked := ""
		if r.HasLiked {
			liked = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.1f\t%.0f\t%s\t%d\t%s\n",
			r.ID, r.Name, r.Type, r.DistanceKM, r.ElevationM, r.Difficulty, r.Likes, liked)
	}
	return tw.Flush()
}
