package main

import (
	"context"
	"fmt"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"rover/internal/link/tcp"
)

// DemoCommand drives a repeating pattern of moves and arm poses.
type DemoCommand struct {
	Interval time.Duration `short:"i" long:"interval" default:"1s" description:"Delay between commands"`
	Speed    int           `short:"s" long:"speed" default:"50" description:"Drive speed 0..100"`
	Random   bool          `long:"random" description:"Pick steps at random instead of in order"`
}

func (c *DemoCommand) steps() []string {
	return []string{
		fmt.Sprintf("F:%d", c.Speed),
		fmt.Sprintf("L:%d", c.Speed),
		fmt.Sprintf("R:%d", c.Speed),
		fmt.Sprintf("B:%d", c.Speed),
		fmt.Sprintf("T:%d,%d", c.Speed, -c.Speed),
		"S",
		"P:place",
		"P:pick",
		"ARM_HOME",
		"SENSOR_STATUS",
		"STATUS",
	}
}

func (c *DemoCommand) Execute(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := tcp.NewClient(opts.Address, 5*time.Second)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	go func() {
		for line := range client.Lines() {
			fmt.Println(styleLine(line))
		}
		stop()
	}()

	steps := c.steps()
	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			// 退出前停车
			_ = client.Send("S")
			return nil
		case <-ticker.C:
			step := steps[i%len(steps)]
			if c.Random {
				step = steps[rand.Intn(len(steps))]
			}
			fmt.Println(headerStyle.Render("> " + step))
			if err := client.Send(step); err != nil {
				return err
			}
		}
	}
}
