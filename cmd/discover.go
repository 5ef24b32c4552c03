package main

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadflow/internal/ingest"
	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/pkg/places"
)

var (
	discoverCity     string
	discoverCategory string
	discoverLimit    int
	discoverSession  string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Search producers for businesses and write them into a new session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		producers := buildProducers()
		if len(producers) == 0 {
			return eris.New("no discovery producers configured")
		}

		limit := discoverLimit
		if limit <= 0 {
			limit = cfg.Discovery.Limit
		}
		query := places.Query{
			City:         discoverCity,
			Category:     discoverCategory,
			RadiusMeters: cfg.Discovery.RadiusMeters,
			Limit:        limit,
		}

		// Fan the search out across producers; a producer that errors
		// loses its records but does not sink the batch.
		var mu sync.Mutex
		var records []model.RawRecord

		g, gCtx := errgroup.WithContext(ctx)
		for _, p := range producers {
			g.Go(func() error {
				found, searchErr := p.Search(gCtx, query)
				if searchErr != nil {
					zap.L().Warn("discover: producer failed",
						zap.String("producer", string(p.Name())),
						zap.Error(searchErr),
					)
					return nil
				}
				zap.L().Info("discover: producer returned",
					zap.String("producer", string(p.Name())),
					zap.Int("records", len(found)),
				)
				mu.Lock()
				records = append(records, found...)
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		if len(records) == 0 {
			return eris.New("discover: no records found")
		}

		sessionID := discoverSession
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		writer := ingest.NewWriter(st)
		report, err := writer.Upsert(ctx, sessionID, records)
		if err != nil {
			return eris.Wrap(err, "discover: upsert")
		}

		verifier := ingest.NewVerifier(st, time.Duration(cfg.Ingest.VerifyIntervalSecs)*time.Second)
		maxWait := time.Duration(cfg.Ingest.VerifyMaxWaitSecs) * time.Second
		ready, count := verifier.WaitForSessionReady(ctx, sessionID, maxWait)

		zap.L().Info("discover: session written",
			zap.String("session_id", sessionID),
			zap.Int("inserted", report.Inserted),
			zap.Int("updated", report.Updated),
			zap.Int("failed", report.Failed),
			zap.Bool("ready", ready),
			zap.Int("verified_count", count),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func buildProducers() []places.Producer {
	var producers []places.Producer

	producers = append(producers, places.NewOSMProducer(
		cfg.Discovery.OSMUserAgent,
		places.WithOSMRateLimit(cfg.Discovery.OSMRateLimit),
	))

	if cfg.Discovery.FoursquareKey != "" {
		producers = append(producers, places.NewFoursquareProducer(
			cfg.Discovery.FoursquareKey,
			places.WithFoursquareRateLimit(cfg.Discovery.FoursquareRateLimit),
		))
	}

	return producers
}

func init() {
	discoverCmd.Flags().StringVar(&discoverCity, "city", "", "city to search (required)")
	discoverCmd.Flags().StringVar(&discoverCategory, "category", "", "business category to search (required)")
	discoverCmd.Flags().IntVar(&discoverLimit, "limit", 0, "max records per producer")
	discoverCmd.Flags().StringVar(&discoverSession, "session", "", "session id (defaults to a new UUID)")
	_ = discoverCmd.MarkFlagRequired("city")
	_ = discoverCmd.MarkFlagRequired("category")
	rootCmd.AddCommand(discoverCmd)
}
