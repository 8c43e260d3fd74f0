package main

import (
	"fmt"
	"strings"
	"time"

	"socialnerd/internal/discovery"
	"socialnerd/internal/governor"
	"socialnerd/internal/orchestrator"
	"socialnerd/internal/poster"
	"socialnerd/internal/synthesis"

	"github.com/spf13/cobra"
)

var (
	runLimit         int
	runMinEngagement int
	runTone          string
	runInstructions  string
	runConcurrency   int
)

// runCmd executes one full discover/synthesize/review/post cycle.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Discover trending posts, draft replies, review and post",
	Long: `Runs one full cycle: discovers trending posts above the engagement
floor, drafts one reply per post, then walks through the drafts
interactively. Each draft can be posted, edited, regenerated, skipped,
or the whole review can be quit.

Nothing is posted without an explicit 'p' at the review prompt.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		generator, err := synthesis.NewGeneratorFromConfig(cfg.Generation)
		if err != nil {
			return err
		}

		gov := buildGovernor()
		mgr, transport, err := openSession(ctx, gov)
		if err != nil {
			return err
		}
		defer transport.Close()

		orch := orchestrator.New(
			discovery.NewPipeline(mgr, gov, cfg.Platform),
			synthesis.NewAdapter(generator),
			poster.NewSequencer(mgr, gov, cfg.Platform, cfg.Typing),
			gov,
		)

		added, err := orch.RunCycle(ctx, orchestrator.CycleParams{
			Limit:         runLimit,
			MinEngagement: runMinEngagement,
			Tone:          synthesis.Tone(runTone),
			Instructions:  runInstructions,
			Concurrency:   runConcurrency,
		})
		if err != nil {
			if governor.IsRateLimited(err) {
				fmt.Printf("Rate limited; %d drafts ready. Cooldown remaining: %s\n",
					added, gov.CooldownRemaining().Round(time.Second))
			} else {
				return err
			}
		}
		if added == 0 {
			fmt.Println("No drafts to review.")
			return nil
		}

		return reviewLoop(cmd, orch)
	},
}

func reviewLoop(cmd *cobra.Command, orch *orchestrator.Orchestrator) error {
	ctx := cmd.Context()
	drafts := orch.Drafts()
	fmt.Printf("%d drafts to review.\n", len(drafts))

	for _, draft := range drafts {
		for {
			current, ok := orch.Draft(draft.ID)
			if !ok {
				break
			}
			fmt.Printf("\n@%s: %s\n", current.AuthorHandle, oneLine(current.SourceText))
			fmt.Printf("Draft (%s): %s\n", current.Tone, current.Text)

			choice, err := promptLine("[p]ost / [e]dit / [r]egenerate / [s]kip / [q]uit: ")
			if err != nil {
				return err
			}

			switch strings.ToLower(choice) {
			case "p":
				conf, err := orch.Submit(ctx, current.ID)
				if err != nil {
					fmt.Printf("Posting failed: %v\n", err)
					if governor.IsRateLimited(err) {
						return err
					}
				} else {
					fmt.Printf("Posted reply under %s at %s\n", conf.PostID, conf.PostedAt.Format("15:04:05"))
				}
			case "e":
				text, err := promptLine("New text: ")
				if err != nil {
					return err
				}
				if err := orch.EditDraft(current.ID, text); err != nil {
					fmt.Printf("Edit rejected: %v\n", err)
					continue
				}
				continue
			case "r":
				if err := orch.Regenerate(ctx, current.ID); err != nil {
					fmt.Printf("Regeneration failed: %v\n", err)
					if governor.IsRateLimited(err) {
						return err
					}
				}
				continue
			case "s":
				orch.Discard(current.ID)
			case "q":
				fmt.Println("Review ended; remaining drafts discarded.")
				return nil
			default:
				continue
			}
			break
		}
	}
	fmt.Println("Review complete.")
	return nil
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) > 100 {
		return string(runes[:97]) + "..."
	}
	return s
}

func init() {
	runCmd.Flags().IntVar(&runLimit, "limit", 5, "maximum posts to draft replies for")
	runCmd.Flags().IntVar(&runMinEngagement, "min-engagement", 100, "minimum likes+shares")
	runCmd.Flags().StringVar(&runTone, "tone", string(synthesis.ToneFriendly),
		fmt.Sprintf("reply tone %v", synthesis.Tones()))
	runCmd.Flags().StringVar(&runInstructions, "instructions", "", "extra steering for the generator")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 2, "parallel synthesis calls")
}
