package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/mail"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/antispam/internal/adapters/filter"
	"github.com/mikey/antispam/internal/core"
	"github.com/mikey/antispam/internal/di"
	"github.com/mikey/antispam/internal/learning"
	"github.com/mikey/antispam/internal/logging"
	"github.com/mikey/antispam/internal/rules"
	"github.com/mikey/antispam/internal/stats"
)

var (
	inputFile = flag.String("file", "", "Input email file (use stdin if not specified)")
	verbose   = flag.Bool("verbose", false, "Enable verbose logging")
	jsonLog   = flag.Bool("json-log", false, "Output logs in JSON format")

	// Feedback flags. One report per invocation.
	markSpam      = flag.Bool("mark-spam", false, "Report the input message as missed spam")
	markNotSpam   = flag.Bool("mark-not-spam", false, "Report the input message as a false positive")
	whitelistFlag = flag.String("add-whitelist", "", "Trust a sender or domain permanently")
	blacklistFlag = flag.String("add-blacklist", "", "Block a sender or domain permanently")

	showStats = flag.Int("stats", 0, "Print activity stats for the last N days and exit")
	showLists = flag.Bool("lists", false, "Print the rule lists and exit")
	retrain   = flag.Bool("retrain", false, "Retrain the model on buffered samples and exit")
)

func main() {
	flag.Parse()

	logger, err := logging.InitConsoleLogger(*verbose, *jsonLog)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	container, err := di.BuildContainer()
	if err != nil {
		logger.Fatal("Failed to build dependency container", zap.Error(err))
	}

	if err := container.Invoke(runCli); err != nil {
		logger.Fatal("Command failed", zap.Error(err))
	}
}

func runCli(
	pipeline *core.Pipeline,
	loop *learning.Loop,
	lists *rules.Lists,
	statsManager *stats.Manager,
	logger *zap.Logger,
) error {
	switch {
	case *showStats > 0:
		fmt.Print(statsManager.Summary(*showStats))
		return nil
	case *showLists:
		printLists(lists)
		return nil
	case *retrain:
		result, err := loop.Retrain()
		if err != nil {
			return err
		}
		statsManager.RecordRetrain()
		fmt.Printf("Retrained on %d samples (%d spam, %d ham), accuracy %.2f\n",
			result.SampleCount, result.SpamCount, result.HamCount, result.Accuracy)
		if result.Degenerate {
			fmt.Println("Note: sample set too small for a held-out split; accuracy measured on training data")
		}
		return nil
	case *whitelistFlag != "":
		if err := loop.Process(learning.Feedback{Kind: learning.KindWhitelist, Sender: *whitelistFlag}); err != nil {
			return err
		}
		statsManager.RecordFeedback()
		fmt.Printf("Whitelisted %s\n", *whitelistFlag)
		return nil
	case *blacklistFlag != "":
		if err := loop.Process(learning.Feedback{Kind: learning.KindBlacklist, Sender: *blacklistFlag}); err != nil {
			return err
		}
		statsManager.RecordFeedback()
		fmt.Printf("Blacklisted %s\n", *blacklistFlag)
		return nil
	}

	email, err := readEmail()
	if err != nil {
		return err
	}

	if *markSpam || *markNotSpam {
		kind := learning.KindIsSpam
		if *markNotSpam {
			kind = learning.KindNotSpam
		}
		if err := loop.Process(learning.Feedback{Kind: kind, Email: email}); err != nil {
			return err
		}
		statsManager.RecordFeedback()
		fmt.Printf("Recorded feedback %q for %s\n", kind, email.SenderEmail)
		return nil
	}

	cli := filter.NewCliFilter(pipeline, statsManager, logger, *verbose)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	_, err = cli.ProcessEmail(ctx, email)
	return err
}

func readEmail() (*core.Email, error) {
	var reader io.Reader = os.Stdin
	if *inputFile != "" {
		file, err := os.Open(*inputFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open input file: %w", err)
		}
		defer file.Close()
		reader = file
	}

	msg, err := mail.ReadMessage(bufio.NewReader(reader))
	if err != nil {
		return nil, fmt.Errorf("failed to parse email: %w", err)
	}

	sender := msg.Header.Get("From")
	if addr, err := mail.ParseAddress(sender); err == nil {
		sender = addr.Address
	}
	return filter.EmailFromMessage(msg, sender, time.Now())
}

func printLists(lists *rules.Lists) {
	emails, domains := lists.Snapshot(true)
	fmt.Println("Whitelist:")
	for _, item := range append(emails, domains...) {
		fmt.Printf("  %s\n", item)
	}
	emails, domains = lists.Snapshot(false)
	fmt.Println("Blacklist:")
	for _, item := range append(emails, domains...) {
		fmt.Printf("  %s\n", item)
	}
}
