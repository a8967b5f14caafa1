// Command operator talks to a running rover over its TCP link: one-shot
// commands, an interactive console, a scripted drive demo and a serial port
// listing for setting up the Bluetooth bridge.
package main

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jessevdk/go-flags"
)

type Options struct {
	Address string `short:"a" long:"address" default:"127.0.0.1:9000" description:"Rover TCP link address"`

	Send    SendCommand    `command:"send" description:"Send commands and print the replies"`
	Console ConsoleCommand `command:"console" alias:"c" description:"Interactive operator console"`
	Demo    DemoCommand    `command:"demo" description:"Drive a scripted pattern until interrupted"`
	Ports   PortsCommand   `command:"ports" description:"List serial ports"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	eventStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// styleLine colours a rover line by kind.
func styleLine(line string) string {
	return lineStyle(line).Render(line)
}

func lineStyle(line string) lipgloss.Style {
	switch {
	case strings.HasPrefix(line, "OK_"), line == "PONG":
		return okStyle
	case strings.HasPrefix(line, "ERR_"):
		return errStyle
	case strings.HasPrefix(line, "Uptime:"), strings.HasPrefix(line, "SENSOR"), strings.HasPrefix(line, "HELP:"), line == "HEARTBEAT":
		return dimStyle
	default:
		return eventStyle
	}
}

func main() {
	parser.LongDescription = "Operator client for the rover controller"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
