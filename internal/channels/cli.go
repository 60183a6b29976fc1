package channels

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/velvetfox/velvetfox/internal/bus"
)

var cliExitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

// CLIChannel is the interactive terminal transport. Choice menus print as
// a numbered list; typing the number selects.
type CLIChannel struct {
	Base

	mu   sync.Mutex
	menu []string // last menu's choice data in display order
}

func NewCLIChannel(b bus.Bus) *CLIChannel {
	return &CLIChannel{Base: NewBase(bus.ChannelCLI, b, nil)}
}

func (c *CLIChannel) Name() string { return string(bus.ChannelCLI) }

// Start runs the stdin REPL until ctx is cancelled or stdin closes.
func (c *CLIChannel) Start(ctx context.Context) error {
	fmt.Printf("Type /setup to begin, 'exit' or Ctrl+C to quit.\n\n")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")

		scanDone := make(chan bool, 1)
		go func() {
			scanDone <- scanner.Scan()
		}()

		select {
		case ok := <-scanDone:
			if !ok {
				fmt.Println("\nGoodbye!")
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if cliExitCommands[strings.ToLower(line)] {
			fmt.Println("Goodbye!")
			return nil
		}

		if n, err := strconv.Atoi(line); err == nil {
			c.mu.Lock()
			menu := c.menu
			c.mu.Unlock()
			if n >= 1 && n <= len(menu) {
				c.HandleSelection("local", "direct", menu[n-1], nil)
				continue
			}
		}
		c.HandleText("local", "direct", line, nil)
	}
}

// Send prints an outbound reply, rendering any choice menu as a numbered
// list.
func (c *CLIChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	fmt.Printf("\n%s\n", msg.Content())

	choices := msg.Choices()
	if len(choices) == 0 {
		c.mu.Lock()
		c.menu = nil
		c.mu.Unlock()
		return nil
	}

	var order []string
	n := 1
	for _, row := range choices {
		for _, choice := range row {
			fmt.Printf("  %d. %s\n", n, choice.Label)
			order = append(order, choice.Data)
			n++
		}
	}
	fmt.Println("  (type a number to choose)")

	c.mu.Lock()
	c.menu = order
	c.mu.Unlock()
	return nil
}
