package banner

import (
	"fmt"
	"strings"
)

const banner = `
 █████╗ ██╗   ██╗████████╗ ██████╗ ██████╗ ██╗      ██████╗  ██████╗██╗  ██╗
██╔══██╗██║   ██║╚══██╔══╝██╔═══██╗██╔══██╗██║     ██╔═══██╗██╔════╝██║ ██╔╝
███████║██║   ██║   ██║   ██║   ██║██████╔╝██║     ██║   ██║██║     █████╔╝
██╔══██║██║   ██║   ██║   ██║   ██║██╔══██╗██║     ██║   ██║██║     ██╔═██╗
██║  ██║╚██████╔╝   ██║   ╚██████╔╝██████╔╝███████╗╚██████╔╝╚██████╗██║  ██╗
╚═╝  ╚═╝ ╚═════╝    ╚═╝    ╚═════╝ ╚═════╝ ╚══════╝ ╚═════╝  ╚═════╝╚═╝  ╚═╝
`

// Print prints the startup banner with runtime info and the configured
// webhook bindings.
func Print(addr, dbPath, source, version string, webhooks []string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	if source != "" {
		fmt.Printf("Config source: %s\n", source)
	}
	fmt.Println("\n== Webhooks ===================================================")
	if len(webhooks) == 0 {
		fmt.Println("(none configured)")
	} else {
		fmt.Println(strings.Join(webhooks, "\n"))
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST <webhook path>    - Telegram webhook updates")
	fmt.Println("GET  /exports/{key}    - signed export downloads")
	fmt.Println("GET  /healthz /readyz  - probes")
	fmt.Println("GET  /metrics          - prometheus counters")
}
