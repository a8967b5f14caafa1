package main

import (
	"fmt"

	"go.bug.st/serial"
)

type PortsCommand struct{}

func (c *PortsCommand) Execute(args []string) error {
	ports, err := serial.GetPortsList()
	if err != nil {
		return fmt.Errorf("failed to list serial ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Println(dimStyle.Render("No serial ports found"))
		return nil
	}
	fmt.Println(headerStyle.Render("Serial ports"))
	for _, port := range ports {
		fmt.Println("  " + port)
	}
	return nil
}
