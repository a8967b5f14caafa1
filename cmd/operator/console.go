package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"rover/internal/link/tcp"
)

type ConsoleCommand struct {
	Heartbeat time.Duration `long:"heartbeat" default:"0s" description:"Send PING at this interval to keep the watchdog fed (0 disables)"`
}

func (c *ConsoleCommand) Execute(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := tcp.NewClient(opts.Address, 5*time.Second)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	fmt.Println(headerStyle.Render("Connected to " + opts.Address))
	fmt.Println(dimStyle.Render("Type commands such as F:60, P:pick, STATUS. Ctrl-D or quit exits."))

	go func() {
		for line := range client.Lines() {
			fmt.Println(styleLine(line))
		}
		fmt.Println(errStyle.Render("connection closed"))
		stop()
	}()

	if c.Heartbeat > 0 {
		go heartbeat(ctx, client, c.Heartbeat)
	}

	input := make(chan string)
	go func() {
		defer close(input)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			input <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-input:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == "quit" || line == "exit" {
				return nil
			}
			if err := client.Send(line); err != nil {
				return err
			}
		}
	}
}

func heartbeat(ctx context.Context, client *tcp.Client, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.Send("PING"); err != nil {
				return
			}
		}
	}
}
