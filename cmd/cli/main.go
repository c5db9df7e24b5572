package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/thereceipt/label-engine/internal/tui"
)

const (
	defaultServerURL = "http://localhost:12212"
)

func main() {
	var serverURL string
	flag.StringVar(&serverURL, "server", defaultServerURL, "Server URL")
	flag.StringVar(&serverURL, "s", defaultServerURL, "Server URL (short)")
	flag.Parse()

	if flag.NArg() == 0 {
		printUsage()
		os.Exit(1)
	}

	args := flag.Args()

	if args[0] == "watch" {
		if err := tui.NewWatcher(wsURL(serverURL)).Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	var command, tempFile string
	if len(args) >= 2 && args[0] == "print" {
		if args[1] == "--compose" {
			var err error
			tempFile, err = createComposedLabel(args[2:])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating composed label: %v\n", err)
				os.Exit(1)
			}
			command = "print " + quote(tempFile)
		} else {
			parts := []string{"print", quote(localPath(args[1]))}
			for _, a := range args[2:] {
				parts = append(parts, quote(a))
			}
			command = strings.Join(parts, " ")
		}
	} else {
		command = strings.Join(args, " ")
	}

	result := executeCommand(serverURL, command)
	if tempFile != "" {
		os.Remove(tempFile)
	}

	if result.Success {
		printSuccess(result)
		os.Exit(0)
	} else {
		printError(result)
		os.Exit(1)
	}
}

// wsURL turns the server's HTTP base URL into its event stream URL
func wsURL(serverURL string) string {
	u := strings.TrimSuffix(serverURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

// localPath makes file arguments absolute so the server resolves them the
// way the caller meant; URLs pass through
func localPath(arg string) string {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return arg
	}
	if abs, err := filepath.Abs(arg); err == nil {
		return abs
	}
	return arg
}

func quote(s string) string {
	if strings.ContainsAny(s, " \t") {
		return `"` + s + `"`
	}
	return s
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Label Engine CLI

Usage:
  label-cli [flags] <command>

Flags:
  -s, -server <url>    Server URL (default: %s)

Commands:
  scan | stop
    Start or stop discovering printers

  devices
    List printers found by the current scan

  connect <device-id> [--bypass]
    Connect to a printer; --bypass skips the paired-device check

  disconnect
    Close the connection

  state | status
    Show the connection state, or query the printer's status byte

  print <label-path|url> [--var key=value]
    Print a label job (JSON) to the connected printer, filling in variables

  print --compose <items...>
    Compose and print a label from command-line arguments
    Compose arguments:
      label:50x30                     - Label size in mm
      copies:2                        - Number of copies
      text:"Hello" x:2 y:3 size:4     - Text item
      barcode:"12345" width:30        - Code 128 barcode
      qrcode:"https://..." width:15   - QR code
      image:./logo.png                - Image file
    Item properties: x, y, width, height (mm), size, style, font, invert

  cancel
    Abort the print in progress

  jobs [clear] | job <id>
    List print history, clear finished jobs, or show one job

  known
    List remembered printers

  name <device-id> <alias>
    Set an alias for a remembered printer

  watch
    Follow scan and connection events live

  help
    Show help message

Examples:
  label-cli scan
  label-cli connect DC:0D:30:AA:BB:CC
  label-cli print ./shipping.json
  label-cli print ./shipping.json --var order=1042 --var customer="Jane Doe"
  label-cli print --compose label:40x30 text:"SKU 1042" x:2 y:2 size:4 qrcode:"1042" x:22 y:2 width:15 height:15
  label-cli name DC:0D:30:AA:BB:CC "Warehouse"
  label-cli -s http://localhost:8080 watch

`, defaultServerURL)
}

type CommandResult struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Code    string                 `json:"code,omitempty"`
}

func executeCommand(serverURL, command string) *CommandResult {
	url := strings.TrimSuffix(serverURL, "/") + "/command"

	reqBody := map[string]string{
		"command": command,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return &CommandResult{
			Success: false,
			Error:   fmt.Sprintf("failed to marshal request: %v", err),
		}
	}

	resp, err := http.Post(url, "application/json", strings.NewReader(string(jsonData)))
	if err != nil {
		return &CommandResult{
			Success: false,
			Error:   fmt.Sprintf("failed to connect to server: %v", err),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &CommandResult{
			Success: false,
			Error:   fmt.Sprintf("failed to read response: %v", err),
		}
	}

	var result CommandResult
	if err := json.Unmarshal(body, &result); err != nil {
		return &CommandResult{
			Success: false,
			Error:   fmt.Sprintf("failed to parse response: %v", err),
		}
	}

	return &result
}

func printSuccess(result *CommandResult) {
	if result.Message != "" {
		fmt.Println(result.Message)
	}

	if result.Data == nil {
		return
	}

	if devices, ok := result.Data["devices"].([]interface{}); ok {
		fmt.Println("\nDevices:")
		for _, d := range devices {
			if dev, ok := d.(map[string]interface{}); ok {
				line := fmt.Sprintf("  %s: %v", dev["id"], dev["name"])
				if rssi, ok := dev["signalStrength"]; ok {
					line += fmt.Sprintf(" (%v dBm)", rssi)
				}
				fmt.Println(line)
			}
		}
	}

	if printers, ok := result.Data["printers"].([]interface{}); ok {
		fmt.Println("\nKnown printers:")
		for _, p := range printers {
			if printer, ok := p.(map[string]interface{}); ok {
				name := printer["alias"]
				if name == nil || name == "" {
					name = printer["name"]
				}
				fmt.Printf("  %s: %v (%s)\n", printer["id"], name, printer["transport"])
			}
		}
	}

	if jobs, ok := result.Data["jobs"].([]interface{}); ok {
		fmt.Println("\nJobs:")
		for _, j := range jobs {
			if job, ok := j.(map[string]interface{}); ok {
				fmt.Printf("  %s: %s (printer: %s)\n",
					job["id"], job["status"], job["device_id"])
			}
		}
	}

	if job, ok := result.Data["job"].(map[string]interface{}); ok {
		if e, ok := job["error"].(string); ok && e != "" {
			fmt.Printf("Error: %s\n", e)
		}
	}

	if jobID, ok := result.Data["job_id"].(string); ok {
		fmt.Printf("Job ID: %s\n", jobID)
	}

	if status, ok := result.Data["status"]; ok {
		fmt.Printf("Status: %v\n", status)
	}
}

func printError(result *CommandResult) {
	if result.Error != "" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", result.Error)
	} else if result.Message != "" {
		fmt.Fprintf(os.Stderr, "%s\n", result.Message)
	}
	if result.Code != "" {
		fmt.Fprintf(os.Stderr, "Code: %s\n", result.Code)
	}
	if jobID, ok := result.Data["job_id"].(string); ok {
		fmt.Fprintf(os.Stderr, "Job ID: %s\n", jobID)
	}
}
