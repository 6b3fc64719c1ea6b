// Command waiter is a terminal waiter client.  It finds a POS server on the
// LAN (or takes one by address), walks the login chain and then works on
// tables and orders while printing the server's live events.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/iliyamo/pos-waiter/internal/app"
	"github.com/iliyamo/pos-waiter/internal/config"
	"github.com/iliyamo/pos-waiter/internal/realtime"
	"github.com/iliyamo/pos-waiter/internal/session"
)

func main() {
	envFile := flag.String("env", ".env", "dotenv file to load")
	addr := flag.String("addr", "", "POS server address (ip[:port]); skips discovery")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "POS waiter terminal\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  waiter [--addr <ip[:port]>] [--env <file>]\n\n")
		fmt.Fprintf(os.Stderr, "Type 'help' at the prompt for commands.\n")
	}
	flag.Parse()

	config.LoadDotEnv(*envFile)
	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *addr != "" {
		cfg.Address = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, nil)
	if err != nil {
		log.Fatalf("waiter: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Printf("waiter: close: %v", err)
		}
	}()

	sh := &shell{app: a, out: os.Stdout}
	a.Session.OnChange(func(s session.Snapshot) {
		fmt.Fprintf(sh.out, "\n[session] %s\n", s.State)
	})
	a.Events.OnStateChange(func(s realtime.State) {
		fmt.Fprintf(sh.out, "\n[events] %s\n", s)
	})
	for _, name := range []string{
		realtime.EventTableUpdate, realtime.EventOrderNew, realtime.EventOrderUpdate,
		realtime.EventOrderItemAdd, realtime.EventOrderPaid, realtime.EventMenuItemUpdate,
		realtime.EventAuthOK, realtime.EventAuthError,
	} {
		a.Events.On(name, func(ev realtime.Event) {
			fmt.Fprintf(sh.out, "\n[event] %s %s\n", ev.Name, ev.Data)
		})
	}

	st, err := a.Session.Start(ctx)
	if err != nil {
		log.Printf("waiter: restore: %v", err)
	}
	if st == session.AddressEntry && cfg.Address != "" {
		sh.run(ctx, []string{"connect", cfg.Address})
	}
	sh.status()

	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(sh.out, "> ")
		if !in.Scan() {
			return
		}
		if quit := sh.exec(ctx, in.Text()); quit {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}
