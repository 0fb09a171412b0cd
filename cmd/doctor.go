package cmd

import (
	"fmt"
	"net"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sinain-hud/core/internal/config"
	"github.com/sinain-hud/core/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("sinain doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (using defaults — not found)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Agent:")
	fmt.Printf("    %-14s %v\n", "Enabled:", cfg.Agent.Enabled)
	fmt.Printf("    %-14s %s\n", "Model:", cfg.Agent.Model)
	if len(cfg.Agent.FallbackModels) > 0 {
		fmt.Printf("    %-14s %s\n", "Fallbacks:", strings.Join(cfg.Agent.FallbackModels, ", "))
	}

	fmt.Println()
	fmt.Println("  Escalation:")
	fmt.Printf("    %-14s %s\n", "Mode:", cfg.Escalation.Mode)
	fmt.Printf("    %-14s %dms\n", "Cooldown:", cfg.Escalation.CooldownMS)

	fmt.Println()
	fmt.Println("  Assistant gateway:")
	checkSecret("Gateway token", cfg.OpenClaw.GatewayToken)
	checkURL("Gateway WS URL", cfg.OpenClaw.GatewayWSURL)
	checkSecret("Hook token", cfg.OpenClaw.HookToken)
	checkURL("Hook URL", cfg.OpenClaw.HookURL)
	if cfg.Escalation.Mode != "off" && cfg.OpenClaw.GatewayWSURL == "" && cfg.OpenClaw.HookURL == "" {
		fmt.Println("    WARNING: escalation is enabled but neither gatewayWsUrl nor hookUrl is set")
	}

	fmt.Println()
	fmt.Println("  Situation file:")
	ws := config.ExpandHome(cfg.SituationMDPath)
	fmt.Printf("    %-14s %v\n", "Enabled:", cfg.SituationMDEnabled)
	fmt.Printf("    %-14s %s", "Path:", ws)
	if _, err := os.Stat(ws); err != nil {
		fmt.Println(" (not yet written)")
	} else {
		fmt.Println(" (OK)")
	}

	fmt.Println()
	fmt.Println("  Trace journal:")
	fmt.Printf("    %-14s %v\n", "Enabled:", cfg.TraceEnabled)
	fmt.Printf("    %-14s %s\n", "Dir:", config.ExpandHome(cfg.TraceDir))

	fmt.Println()
	fmt.Println("  Network:")
	checkPort(cfg.WSPort)

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkSecret(name, val string) {
	if val == "" {
		fmt.Printf("    %-14s (not set)\n", name+":")
		return
	}
	masked := val
	if len(val) > 8 {
		masked = val[:4] + strings.Repeat("*", len(val)-8) + val[len(val)-4:]
	} else {
		masked = strings.Repeat("*", len(val))
	}
	fmt.Printf("    %-14s %s\n", name+":", masked)
}

func checkURL(name, val string) {
	if val == "" {
		fmt.Printf("    %-14s (not set)\n", name+":")
		return
	}
	fmt.Printf("    %-14s %s\n", name+":", val)
}

func checkPort(port int) {
	if port <= 0 {
		port = defaultWSPort
	}
	addr := fmt.Sprintf(":%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		fmt.Printf("    %-14s %d (IN USE — %s)\n", "WS port:", port, err)
		return
	}
	ln.Close()
	fmt.Printf("    %-14s %d (free)\n", "WS port:", port)
}
