// Command register drives a full registration-payment flow from the terminal:
// draft, order, a prompt standing in for the payment widget, then polling the
// status endpoint to the terminal answer. Identifiers persist to a local
// SQLite file, so killing the process mid-flow and rerunning with -resume
// picks up where it left off.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/pulsefest/registration/client"
	"github.com/pulsefest/registration/correlation/sqlite"
	"github.com/pulsefest/registration/registration"
	"github.com/pulsefest/registration/saga"
)

const demoEventID = "6b4b1c9e-0000-4000-8000-000000000001"

type participantsFlag []string

func (p *participantsFlag) String() string {
	return strings.Join(*p, "; ")
}

func (p *participantsFlag) Set(value string) error {
	*p = append(*p, value)
	return nil
}

func main() {
	_ = godotenv.Load()

	var participants participantsFlag
	backendURL := flag.String("backend", getEnvOrDefault("BACKEND_URL", "http://localhost:8080"), "backend base URL")
	eventID := flag.String("event", demoEventID, "event id to register for")
	team := flag.String("team", "", "team display name")
	resume := flag.Bool("resume", false, "resume from the stored session instead of drafting")
	listEvents := flag.Bool("list-events", false, "list the backend's events and exit")
	stateDB := flag.String("state-db", getEnvOrDefault("STATE_DB", "register.db"), "path to the local session database")
	flag.Var(&participants, "p", "participant as 'Full Name,email,phone,college'; first is the leader; repeatable")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := context.Background()

	if *listEvents {
		listAllEvents(ctx, client.New(*backendURL))
		return
	}

	evID, err := uuid.Parse(*eventID)
	if err != nil {
		fatalf("invalid event id %q: %s", *eventID, err)
	}

	store, err := sqlite.Open(*stateDB)
	if err != nil {
		fatalf("failed to open session database: %s", err)
	}
	defer store.Close()

	backend := client.New(*backendURL)
	collector := &consoleCollector{
		backendURL: *backendURL,
		in:         bufio.NewReader(os.Stdin),
	}

	s := saga.New(backend, collector, store, logger)

	var result saga.RunResult
	if *resume {
		result, err = s.Resume(ctx, evID)
	} else {
		result, err = s.Run(ctx, evID, *team, parseParticipants(participants))
	}
	if err != nil {
		if saga.IsSessionLost(err) {
			fatalf("no resumable session found, run again without -resume")
		}
		fatalf("registration flow failed: %s", err)
	}

	fmt.Printf("Registration %s (%s)\n", result.Registration.ID, result.Registration.Status)

	if result.Outcome != nil {
		fmt.Printf("Payment widget outcome: %s\n", result.Outcome.Kind)
	}

	if result.Watch == nil {
		fmt.Println("Payment postponed. Rerun with -resume to continue.")
		return
	}

	fmt.Println("Waiting for the authoritative status...")
	go func() {
		for status := range result.Watch.Updates() {
			fmt.Printf("  status: %s\n", status)
		}
	}()

	final, err := result.Watch.Wait(ctx)
	if err != nil {
		fatalf("status polling ended early: %s", err)
	}

	fmt.Printf("Final status: %s\n", final)

	if final == registration.SUCCESS {
		// The flow is complete; a future run should draft fresh.
		if err := store.Clear(ctx, evID); err != nil {
			logger.Warn("Failed to clear session record", slog.String("error", err.Error()))
		}
	}
}

func listAllEvents(ctx context.Context, backend *client.BackendClient) {
	var cursor *string
	for {
		page, err := backend.ListEvents(ctx, 20, cursor)
		if err != nil {
			fatalf("failed to list events: %s", err)
		}

		for _, event := range page.Data {
			fee := "free"
			if !event.IsFree() {
				fee = event.Fee.Display()
			}
			fmt.Printf("%s  %s (%s, closes %s, %d/%d registered)\n",
				event.ID, event.Name, fee,
				event.RegistrationCloseTime.Format(time.RFC822),
				event.NumRegistrations, event.Capacity)
		}

		if !page.HasNextPage {
			return
		}
		cursor = page.Cursor
	}
}

func parseParticipants(raw []string) []registration.Participant {
	out := make([]registration.Participant, 0, len(raw))
	for i, r := range raw {
		parts := strings.Split(r, ",")
		for len(parts) < 4 {
			parts = append(parts, "")
		}
		out = append(out, registration.Participant{
			FullName: strings.TrimSpace(parts[0]),
			Email:    strings.TrimSpace(parts[1]),
			Phone:    strings.TrimSpace(parts[2]),
			College:  strings.TrimSpace(parts[3]),
			IsLeader: i == 0,
		})
	}
	return out
}

func getEnvOrDefault(key string, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}

	return defaultVal
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
