package main

import (
	"fmt"

	"socialnerd/internal/discovery"

	"github.com/spf13/cobra"
)

var (
	discoverLimit         int
	discoverMinEngagement int
)

// discoverCmd lists trending posts without generating anything.
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List trending posts above the engagement floor",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		gov := buildGovernor()
		mgr, transport, err := openSession(ctx, gov)
		if err != nil {
			return err
		}
		defer transport.Close()

		pipeline := discovery.NewPipeline(mgr, gov, cfg.Platform)
		posts, err := pipeline.Discover(ctx, discoverLimit, discoverMinEngagement)
		if err != nil {
			return err
		}

		if len(posts) == 0 {
			fmt.Println("Nothing trending above the engagement floor right now.")
			return nil
		}
		for i, post := range posts {
			fmt.Printf("%2d. %s (%d likes, %d shares)\n    %s\n    %s\n",
				i+1, post.AuthorHandle, post.LikeCount, post.ShareCount,
				oneLine(post.Text), post.Permalink)
		}
		return nil
	},
}

func init() {
	discoverCmd.Flags().IntVar(&discoverLimit, "limit", 10, "maximum posts to list")
	discoverCmd.Flags().IntVar(&discoverMinEngagement, "min-engagement", 100, "minimum likes+shares")
}
