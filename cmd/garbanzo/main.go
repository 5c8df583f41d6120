package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jjhickman/garbanzo-bot-sub001/internal/config"
	"github.com/jjhickman/garbanzo-bot-sub001/internal/cron"
	"github.com/jjhickman/garbanzo-bot-sub001/internal/memory"
	"github.com/jjhickman/garbanzo-bot-sub001/internal/store"
)

var version = "dev"

// engine bundles the wired components behind the CLI commands.
type engine struct {
	cfg       *config.Config
	store     *store.Store
	segmenter *memory.Segmenter
	assembler *memory.Assembler
	embedder  memory.Embedder
}

func openEngine() (*engine, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.DBPath, store.Options{
		MaxMessagesPerChat: cfg.Store.MaxMessagesPerChat,
		MaxMessageChars:    cfg.Store.MaxMessageChars,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	embedder := memory.NewEmbedder(cfg.Embedding)
	segmenter := memory.NewSegmenter(db, db,
		time.Duration(cfg.Session.GapMinutes)*time.Minute,
		cfg.Session.MinMessages, cfg.Session.SummaryVersion)
	retriever := memory.NewRetriever(db, db, embedder, cfg.Session.MaxRetrieved)

	ttl, err := time.ParseDuration(cfg.Context.SummaryCacheTTL)
	if err != nil {
		ttl = 10 * time.Minute
	}
	assembler := memory.NewAssembler(db, retriever,
		memory.NewSummaryCache(ttl, 256), &memory.Metrics{},
		memory.AssemblerConfig{
			RecentMessages: cfg.Context.RecentMessages,
			OlderMessages:  cfg.Context.OlderMessages,
			RelevantLimit:  cfg.Context.RelevantLimit,
		})

	return &engine{
		cfg:       cfg,
		store:     db,
		segmenter: segmenter,
		assembler: assembler,
		embedder:  embedder,
	}, nil
}

func (e *engine) close() {
	_ = e.store.Close()
}

var rootCmd = &cobra.Command{
	Use:   "garbanzo",
	Short: "garbanzo - conversational memory engine for the community chatbot",
}

var (
	ingestFileFlag string
	contextChat    string
	contextQuery   string
	evalFileFlag   string
	evalKFlag      int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Replay JSONL messages into the store and segmenter",
	RunE:  runIngest,
}

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Build the prompt context block for a chat and query",
	RunE:  runContext,
}

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Run the retrieval evaluation harness",
	RunE:  runEval,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Finalize idle open sessions once",
	RunE:  runSweep,
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Run the background jobs (session sweep, embedding backfill) until interrupted",
	RunE:  runJobs,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show session counts by status",
	RunE:  runStats,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show garbanzo version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("garbanzo %s\n", version)
	},
}

type ingestLine struct {
	ChatID    string `json:"chatId"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.close()

	var reader io.Reader = os.Stdin
	if ingestFileFlag != "" {
		f, err := os.Open(ingestFileFlag)
		if err != nil {
			return fmt.Errorf("open ingest file: %w", err)
		}
		defer f.Close()
		reader = f
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	ingested := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg ingestLine
		if err := json.Unmarshal(line, &msg); err != nil {
			return fmt.Errorf("parse line %d: %w", ingested+1, err)
		}
		if msg.Timestamp == 0 {
			msg.Timestamp = time.Now().Unix()
		}
		if err := eng.store.Append(msg.ChatID, msg.Sender, msg.Text, msg.Timestamp); err != nil {
			return fmt.Errorf("store message: %w", err)
		}
		if err := eng.segmenter.OnMessage(msg.ChatID, msg.Sender, msg.Timestamp); err != nil {
			return fmt.Errorf("segment message: %w", err)
		}
		ingested++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	fmt.Printf("ingested %d messages\n", ingested)
	return nil
}

func runContext(cmd *cobra.Command, args []string) error {
	if contextChat == "" {
		return fmt.Errorf("--chat is required")
	}

	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.close()

	block, err := eng.assembler.FormatContext(cmd.Context(), contextChat, contextQuery)
	if err != nil {
		return err
	}
	if block == "" {
		fmt.Println("(no history)")
		return nil
	}
	fmt.Println(block)
	return nil
}

func runEval(cmd *cobra.Command, args []string) error {
	queries := defaultEvalQueries()
	if evalFileFlag != "" {
		data, err := os.ReadFile(evalFileFlag)
		if err != nil {
			return fmt.Errorf("read eval file: %w", err)
		}
		queries = nil
		if err := json.Unmarshal(data, &queries); err != nil {
			return fmt.Errorf("parse eval file: %w", err)
		}
	}

	messages, sessions := memory.GenerateSyntheticData(queries)
	summary := memory.RunEvaluation(queries, messages, sessions, evalKFlag)

	fmt.Printf("queries: %d  mean recall@%d: %.3f  perfect: %d  noisy: %d\n",
		len(summary.Results), evalKFlag, summary.MeanRecallAtK, summary.PerfectRecallCount, summary.NoiseCount)
	for _, result := range summary.Results {
		fmt.Printf("  %-24s recall=%.2f hits=%d/%d", result.Label, result.RecallAtK, result.Hits, result.Expected)
		if result.Noise {
			fmt.Printf(" NOISE")
		}
		fmt.Println()
	}
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.close()

	swept, err := eng.segmenter.SweepIdle(time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("finalized %d idle sessions\n", swept)
	return nil
}

func runJobs(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.close()

	service := cron.NewService()
	if eng.cfg.Jobs.SweepEnabled {
		service.Register(cron.Job{
			Name:     "session-sweep",
			Schedule: eng.cfg.Jobs.SweepSchedule,
			Run: func(ctx context.Context) (string, error) {
				swept, err := eng.segmenter.SweepIdle(time.Now())
				if err != nil {
					return "", err
				}
				if swept == 0 {
					return "", nil
				}
				return fmt.Sprintf("finalized %d idle sessions", swept), nil
			},
		})
	}
	if eng.cfg.Jobs.BackfillEnabled {
		service.Register(cron.Job{
			Name:     "embedding-backfill",
			Schedule: eng.cfg.Jobs.BackfillSchedule,
			Run: func(ctx context.Context) (string, error) {
				filled, err := eng.store.BackfillEmbeddings(ctx, eng.embedder, eng.cfg.Jobs.BackfillBatchSize)
				if err != nil {
					return "", err
				}
				if filled == 0 {
					return "", nil
				}
				return fmt.Sprintf("embedded %d messages", filled), nil
			},
		})
	}

	if err := service.Start(cmd.Context()); err != nil {
		return err
	}
	defer service.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.close()

	counts, err := eng.store.SessionCounts()
	if err != nil {
		return err
	}
	for _, status := range []string{memory.SessionOpen, memory.SessionClosed, memory.SessionSummarized, memory.SessionFailed} {
		fmt.Printf("%-12s %d\n", status, counts[status])
	}
	return nil
}

func defaultEvalQueries() []memory.EvalQuery {
	return []memory.EvalQuery{
		{
			Label:            "trivia-night",
			Query:            "when is trivia night",
			ExpectedEvidence: []string{"trivia night at 7pm downtown"},
		},
		{
			Label:            "pizza-party",
			Query:            "pizza party plans",
			ExpectedEvidence: []string{"Let's plan a pizza party this weekend!"},
		},
		{
			Label:            "book-club",
			Query:            "which book did the club pick",
			ExpectedEvidence: []string{"book club picked The Left Hand of Darkness", "meeting at the library on Thursday"},
		},
	}
}

func main() {
	ingestCmd.Flags().StringVar(&ingestFileFlag, "file", "", "JSONL file to ingest (default stdin)")
	contextCmd.Flags().StringVar(&contextChat, "chat", "", "chat id")
	contextCmd.Flags().StringVar(&contextQuery, "query", "", "query text")
	evalCmd.Flags().StringVar(&evalFileFlag, "file", "", "JSON file of eval queries")
	evalCmd.Flags().IntVarP(&evalKFlag, "k", "k", 5, "retrieval depth K")

	rootCmd.AddCommand(ingestCmd, contextCmd, evalCmd, sweepCmd, jobsCmd, statsCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
