package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rover/internal/link/tcp"
)

type SendCommand struct {
	Timeout time.Duration `short:"t" long:"timeout" default:"2s" description:"Reply timeout per command"`
	Args    struct {
		Commands []string `positional-arg-name:"command" required:"1"`
	} `positional-args:"yes"`
}

func (c *SendCommand) Execute(args []string) error {
	client := tcp.NewClient(opts.Address, c.Timeout)
	ctx := context.Background()
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	for _, command := range c.Args.Commands {
		fmt.Println(headerStyle.Render("> " + command))
		reply, err := client.Request(ctx, command)
		if errors.Is(err, context.DeadlineExceeded) {
			fmt.Println(dimStyle.Render("(no reply)"))
			continue
		}
		if err != nil {
			return err
		}
		fmt.Println(styleLine(reply))
		if reply == "ERR_BUSY" {
			return fmt.Errorf("rover already has an operator")
		}
	}
	return nil
}
