package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/fedeforai/frostdesk-core-sub003/internal/bot"
	"github.com/fedeforai/frostdesk-core-sub003/internal/classifier"
	"github.com/fedeforai/frostdesk-core-sub003/internal/decision"
	"github.com/fedeforai/frostdesk-core-sub003/internal/draft"
	"github.com/fedeforai/frostdesk-core-sub003/internal/errors"
	"github.com/fedeforai/frostdesk-core-sub003/internal/extract"
	"github.com/fedeforai/frostdesk-core-sub003/internal/models"
	"github.com/fedeforai/frostdesk-core-sub003/internal/pipeline"
	"github.com/fedeforai/frostdesk-core-sub003/pkg/config"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(in io.Reader, out io.Writer) *cli.App {
	app := &cli.App{
		Name:    "frostdesk",
		Usage:   "Inbound message triage and reply drafts for ski instructors",
		Version: Version,
		Writer:  out,
		Commands: []*cli.Command{
			serveCmd(),
			classifyCmd(in, out),
			guardCmd(in, out),
		},
	}
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// serveCmd runs the Telegram intake until interrupted.
func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Poll Telegram and run every inbound message through the pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "config.yaml", Usage: "Path to the YAML config"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config %s: %w", c.String("config"), err)
			}
			if cfg.Telegram.Token == "" {
				return stderrors.New("telegram token is required (telegram.token or TELEGRAM_TOKEN)")
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			store, err := openStorage(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer store.Close()

			p := pipeline.New(pipeline.Deps{
				Messages:   store,
				Snapshots:  store,
				Drafts:     store,
				Classifier: newClassifier(cfg, logger),
				Generator:  draft.NewTemplateGenerator(),
				Logger:     logger,
			}, pipeline.Options{StoreTimeout: cfg.Storage.Timeout})

			b, err := bot.New(cfg.Telegram.Token, store, p, bot.Config{
				InstructorID:    cfg.Pipeline.InstructorID,
				DefaultLanguage: cfg.Pipeline.DefaultLanguage,
				Workers:         cfg.Pipeline.Workers,
				PollTimeout:     cfg.Telegram.PollTimeout,
			}, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("Intake started", zap.Int("workers", cfg.Pipeline.Workers))
			return b.Start(ctx)
		},
	}
}

// classifyReport is the dry-run output of the classify command.
type classifyReport struct {
	Classification classifier.Result         `json:"classification"`
	Decision       decision.Decision         `json:"decision"`
	Gate           decision.Gate             `json:"gate"`
	Booking        *extract.BookingFields    `json:"booking,omitempty"`
	Reschedule     *extract.RescheduleFields `json:"reschedule,omitempty"`
}

// classifyCmd classifies text without touching any store.
func classifyCmd(in io.Reader, out io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "classify",
		Usage:     "Classify a message and show the decision and extracted fields (text from args or stdin)",
		ArgsUsage: "[text]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Optional YAML config selecting the classifier"},
			&cli.StringFlag{Name: "language", Aliases: []string{"l"}, Usage: "Language hint (en, it)"},
			&cli.StringFlag{Name: "date", Usage: "Reference date for relative dates (YYYY-MM-DD, default today)"},
		},
		Action: func(c *cli.Context) error {
			text, err := readText(c, in)
			if err != nil {
				return outputError(err)
			}

			now := time.Now()
			if d := c.String("date"); d != "" {
				now, err = time.Parse("2006-01-02", d)
				if err != nil {
					return outputError(errors.NewInvalidRequest("invalid --date: " + d))
				}
			}

			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}

			res, err := newClassifier(cfg, zap.NewNop()).Classify(c.Context, classifier.Input{
				Text:     text,
				Language: c.String("language"),
			})
			if err != nil {
				return outputError(errors.NewInternal(err))
			}

			dec := decision.Decide(res.Relevant, res.RelevanceConfidence, res.IntentConfidence)
			report := classifyReport{
				Classification: res,
				Decision:       dec,
				Gate:           decision.GateFor(dec.Label),
			}
			switch res.Intent {
			case models.IntentNewBooking:
				b := extract.ExtractBooking(text, now)
				report.Booking = &b
			case models.IntentReschedule:
				r := extract.ExtractReschedule(text, now)
				report.Reschedule = &r
			}
			return outputJSON(out, report)
		},
	}
}

// guardCmd screens a draft with the guardrails.
func guardCmd(in io.Reader, out io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "guard",
		Usage:     "Run the draft guardrails over text (from args or stdin)",
		ArgsUsage: "[text]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "language", Aliases: []string{"l"}, Usage: "Draft language (en, it; empty checks all)"},
			&cli.StringFlag{Name: "intent", Usage: "Intent recorded with the violations"},
		},
		Action: func(c *cli.Context) error {
			text, err := readText(c, in)
			if err != nil {
				return outputError(err)
			}
			intent := models.Intent(strings.ToUpper(c.String("intent")))
			if intent != "" && !intent.Valid() {
				return outputError(errors.NewInvalidRequest("unknown intent " + c.String("intent")))
			}
			return outputJSON(out, draft.Sanitize(text, intent, c.String("language")))
		},
	}
}

// Helper functions

// readText joins positional args, or reads piped stdin when there are none.
func readText(c *cli.Context, in io.Reader) (string, error) {
	if c.NArg() > 0 {
		return strings.Join(c.Args().Slice(), " "), nil
	}
	if f, ok := in.(*os.File); ok && isTerminal(f) {
		return "", errors.NewInvalidRequest("text must be passed as arguments or piped via stdin")
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", errors.NewInternal(err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", errors.NewInvalidRequest("text is required")
	}
	return text, nil
}

func isTerminal(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// outputJSON writes v as indented JSON.
func outputJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var pErr *errors.PipelineError
	if stderrors.As(err, &pErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", pErr.Code, pErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
