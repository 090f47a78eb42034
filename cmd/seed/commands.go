package main

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/listenupapp/shelfcache/internal/domain"
	"github.com/listenupapp/shelfcache/internal/id"
)

var (
	demoTags   = []string{"poetry", "sci-fi", "cooking", "travel", "history", "design", "music", "film"}
	demoTitles = []string{"Favorites", "To read", "Weekend", "Inspiration", "Archive", "Shortlist", "Notes", "Picks"}
)

func newDemoCmd() *cobra.Command {
	var (
		shelves int
		items   int
		owners  []string
		seed    uint64
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Generate random shelves with tags and cross-shelf references",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if shelves <= 0 || items < 0 || len(owners) == 0 {
				return fmt.Errorf("shelves must be positive and at least one owner is required")
			}

			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if seed == 0 {
				seed = rand.Uint64()
			}
			rng := rand.New(rand.NewPCG(seed, seed>>1))
			ctx := cmd.Context()

			ids := make([]string, 0, shelves)
			for n := range shelves {
				shelf := domain.NewShelf(
					id.MustGenerate("shelf"),
					owners[rng.IntN(len(owners))],
					fmt.Sprintf("%s %d", demoTitles[rng.IntN(len(demoTitles))], n+1),
				)
				shelf.Tags = pickTags(rng)

				for k := 1; k <= items; k++ {
					content := domain.TextContent(fmt.Sprintf("item %d", k))
					// Only earlier shelves are referenced, so the graph stays acyclic.
					if len(ids) > 0 && rng.IntN(4) == 0 {
						content = domain.ShelfRefContent(ids[rng.IntN(len(ids))])
					}
					shelf.Append(domain.Item{Key: k, Content: content})
				}

				if err := s.PutShelf(ctx, shelf); err != nil {
					return fmt.Errorf("put shelf %s: %w", shelf.ID, err)
				}
				ids = append(ids, shelf.ID)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d shelves (seed %d) into %s\n", len(ids), seed, dataPath)
			return nil
		},
	}

	cmd.Flags().IntVarP(&shelves, "shelves", "n", 25, "Number of shelves to create")
	cmd.Flags().IntVar(&items, "items", 5, "Items per shelf")
	cmd.Flags().StringSliceVar(&owners, "owners", []string{"alice", "bob", "carol"}, "Owner IDs to spread shelves over")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed (0 picks one)")
	return cmd
}

func pickTags(rng *rand.Rand) []string {
	n := rng.IntN(3) + 1
	tags := make([]string, 0, n)
	for _, i := range rng.Perm(len(demoTags))[:n] {
		tags = append(tags, demoTags[i])
	}
	slices.Sort(tags)
	return tags
}

func newShelfCmd() *cobra.Command {
	var (
		shelfID string
		owner   string
		title   string
		tags    []string
		texts   []string
		refs    []string
	)

	cmd := &cobra.Command{
		Use:   "shelf",
		Short: "Create or replace a single shelf",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if shelfID == "" {
				shelfID = id.MustGenerate("shelf")
			}

			shelf := domain.NewShelf(shelfID, owner, title)
			shelf.Tags = tags
			key := 1
			for _, text := range texts {
				shelf.Append(domain.Item{Key: key, Content: domain.TextContent(text)})
				key++
			}
			for _, ref := range refs {
				shelf.Append(domain.Item{Key: key, Content: domain.ShelfRefContent(ref)})
				key++
			}

			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.PutShelf(cmd.Context(), shelf); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote shelf %s with %d items\n", shelf.ID, len(shelf.Items))
			return nil
		},
	}

	cmd.Flags().StringVar(&shelfID, "id", "", "Shelf ID (generated when empty)")
	cmd.Flags().StringVar(&owner, "owner", "", "Owner ID")
	cmd.Flags().StringVar(&title, "title", "", "Shelf title")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tag (repeatable)")
	cmd.Flags().StringArrayVar(&texts, "text", nil, "Text item (repeatable)")
	cmd.Flags().StringSliceVar(&refs, "ref", nil, "Referenced shelf ID (repeatable)")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newTagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "List tags and their shelf counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			tags, err := s.ListTags(cmd.Context())
			if err != nil {
				return err
			}
			if len(tags) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tags.")
				return nil
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-24s %s\n", "TAG", "SHELVES")
			fmt.Fprintln(w, strings.Repeat("-", 32))
			for _, t := range tags {
				fmt.Fprintf(w, "%-24s %d\n", t.Slug, t.ShelfCount)
			}
			return nil
		},
	}
}
