package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/dshills/studysearch/pkg/types"
)

var (
	searchLimit      int
	searchOffset     int
	searchCourses    []string
	searchCategory   string
	searchTypes      []string
	searchWeight     float64
	searchNoKeywords bool
	searchJSON       bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search ingested lectures",
	Long: `Search runs a hybrid search over ingested lectures. Vector similarity
from the query embedding is blended with keyword relevance; when the
embedding provider is unavailable the search falls back to keywords alone
and says so in the output.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "results per page: 10, 25 or 50 (default from config)")
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "number of results to skip")
	searchCmd.Flags().StringSliceVar(&searchCourses, "course", nil, "restrict to course ids")
	searchCmd.Flags().StringVar(&searchCategory, "category", "", "restrict to a lecture category")
	searchCmd.Flags().StringSliceVar(&searchTypes, "type", nil, "result types: chunk, lecture, concept")
	searchCmd.Flags().Float64Var(&searchWeight, "weight", 0, "vector weight between 0 and 1 (default from config)")
	searchCmd.Flags().BoolVar(&searchNoKeywords, "no-keywords", false, "rank by vector similarity only")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print the raw response as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.searcher.Search(cmd.Context(), buildSearchRequest(cmd, args[0]))
	if err != nil {
		return err
	}

	if searchJSON {
		out, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(out))
		return nil
	}

	if resp.Error != nil {
		return errors.New(resp.Error.Message)
	}
	printResults(cmd, resp)
	return nil
}

func buildSearchRequest(cmd *cobra.Command, query string) types.SearchRequest {
	req := types.SearchRequest{
		Query:  query,
		Limit:  searchLimit,
		Offset: searchOffset,
		Filters: types.SearchFilters{
			CourseIDs: searchCourses,
			Category:  searchCategory,
		},
	}
	for _, t := range searchTypes {
		req.Filters.ContentTypes = append(req.Filters.ContentTypes, types.ResultKind(t))
	}
	if cmd.Flags().Changed("weight") {
		w := searchWeight
		req.VectorWeight = &w
	}
	if cmd.Flags().Changed("no-keywords") {
		boost := !searchNoKeywords
		req.IncludeKeywordBoost = &boost
	}
	return req
}

func printResults(cmd *cobra.Command, resp *types.SearchResponse) {
	md := resp.Metadata
	switch {
	case md.FallbackToKeywordSearch:
		cmd.Println("Note: embeddings unavailable, showing keyword matches only")
	case md.DegradedMode:
		cmd.Println("Note: search ran in degraded mode")
	}

	if len(resp.Results) == 0 {
		cmd.Println("No results.")
		return
	}

	cmd.Printf("Results: %d of %d\n\n", len(resp.Results), resp.Total)
	for i, r := range resp.Results {
		cmd.Printf("%d. [%s] %s  (score %.3f, similarity %.3f)\n",
			resp.Pagination.Offset+i+1, r.Kind, r.Title, r.RelevanceScore, r.Similarity)
		if course := r.Source.Base().CourseName; course != "" {
			cmd.Printf("   course: %s\n", course)
		}
		if r.Snippet != "" {
			cmd.Printf("   %s\n", r.Snippet)
		}
	}
	if next := resp.Pagination.NextOffset; next != nil {
		cmd.Printf("\nMore results: --offset %d\n", *next)
	}
}
