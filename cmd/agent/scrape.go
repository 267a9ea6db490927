package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go-procurement-agent/internal/agent"
	"go-procurement-agent/internal/ai"
	"go-procurement-agent/internal/browser"
	"go-procurement-agent/internal/database"
	"go-procurement-agent/internal/models"
	"go-procurement-agent/internal/pdf"
	"go-procurement-agent/utils"
)

var (
	scrapeURL     string
	scrapeState   string
	scrapeCapital string
	scrapeOut     string
	scrapePDF     string
)

// scrapeCmd runs one portal end to end against an in-memory store. Useful
// for trying a new portal without a database.
var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape a single portal and print the extracted opportunities",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, flush, err := setup()
		if err != nil {
			return err
		}
		defer flush()
		log := zap.S().Named("scrape")
		ctx := cmd.Context()

		if err := cfg.RequireLLM(); err != nil {
			return err
		}

		pm, err := browser.NewPlaywright(ctx, cfg.BrowserOptions())
		if err != nil {
			return err
		}
		defer pm.Close()

		store := database.NewMemoryStore()
		jobID, err := store.CreateScrapingJob(ctx, models.NewScrapingJob{
			URL:     scrapeURL,
			State:   scrapeState,
			Capital: scrapeCapital,
		})
		if err != nil {
			return err
		}

		deps := agent.Deps{
			Store:    store,
			Sessions: pm,
			LLM:      ai.NewOpenAIClient(cfg.LLMOptions()),
		}
		if recorder, err := utils.NewDebugRecorder(cfg.DebugDir); err == nil {
			deps.Recorder = recorder
		}

		// Nothing resumes a one-off job held in memory, so an interrupt
		// cancels it and the partial result is still printed.
		jobCtx, cancelJob := context.WithCancelCause(context.WithoutCancel(ctx))
		defer cancelJob(nil)
		stop := context.AfterFunc(ctx, func() { cancelJob(agent.ErrJobCancelled) })
		defer stop()

		log.Infof("▶️ Scraping %s", scrapeURL)
		runErr := agent.New(deps, cfg.AgentBudgets()).Run(jobCtx, jobID)

		job, err := store.GetScrapingJob(ctx, jobID)
		if err != nil {
			return err
		}
		out := struct {
			Job   *models.ScrapingJob     `json:"job"`
			Batch *models.ExtractionBatch `json:"batch,omitempty"`
		}{Job: job}
		if job.ResultRecordID != "" {
			if out.Batch, err = store.GetExtractionBatch(ctx, job.ResultRecordID); err != nil {
				return err
			}
		}

		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		if scrapeOut == "" {
			fmt.Println(string(data))
		} else {
			if err := os.WriteFile(scrapeOut, data, 0644); err != nil {
				return fmt.Errorf("write %s: %w", scrapeOut, err)
			}
			log.Infof("📁 Results saved to %s", scrapeOut)
		}

		if scrapePDF != "" && out.Batch != nil {
			report, err := pdf.NewGenerator(pm).Generate(job, out.Batch)
			if err != nil {
				log.Warnf("⚠️ Failed to render report: %v", err)
			} else if err := pdf.SaveToFile(report, scrapePDF); err != nil {
				log.Warnf("⚠️ Failed to save report: %v", err)
			} else {
				log.Infof("📄 Report saved to %s", scrapePDF)
			}
		}

		if runErr != nil {
			return runErr
		}
		log.Infof("🏁 Job %s %s with %d opportunities", job.ID, job.Status, job.OpportunitiesFound)
		return nil
	},
}

func init() {
	scrapeCmd.Flags().StringVar(&scrapeURL, "url", "", "Portal URL to start from")
	scrapeCmd.Flags().StringVar(&scrapeState, "state", "", "State the portal belongs to")
	scrapeCmd.Flags().StringVar(&scrapeCapital, "capital", "", "Capital city, for reporting")
	scrapeCmd.Flags().StringVarP(&scrapeOut, "out", "o", "", "Write the result JSON to this file instead of stdout")
	scrapeCmd.Flags().StringVar(&scrapePDF, "pdf", "", "Also render the opportunities as a PDF report at this path")
	_ = scrapeCmd.MarkFlagRequired("url")
}
