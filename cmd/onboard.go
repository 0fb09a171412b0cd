package cmd

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/sinain-hud/core/internal/config"
	"github.com/sinain-hud/core/internal/escalation"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactively configure the hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnboard()
		},
	}
}

func runOnboard() error {
	cfgPath := resolveConfigPath()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg = config.Default()
	}

	wsPort := strconv.Itoa(wsPortOrDefault(cfg.WSPort))
	model := cfg.Agent.Model
	if model == "" {
		model = "gpt-4.1-mini"
	}
	mode := string(cfg.Escalation.Mode)
	if mode == "" {
		mode = string(escalation.ModeSelective)
	}
	gatewayWSURL := cfg.OpenClaw.GatewayWSURL
	hookURL := cfg.OpenClaw.HookURL
	sessionKey := cfg.OpenClaw.SessionKey
	situationPath := cfg.SituationMDPath
	if situationPath == "" {
		situationPath = "~/.sinain/situation.md"
	}
	situationEnabled := cfg.SituationMDEnabled

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Overlay websocket port").
				Description("Port the fan-out server listens on for overlay clients").
				Value(&wsPort).
				Validate(validatePort),

			huh.NewInput().
				Title("Model").
				Description("Model used for HUD digests and escalation judgments").
				Value(&model),
		),

		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Escalation mode").
				Description("How aggressively the hub reaches out to the assistant").
				Options(
					huh.NewOption("off — never escalate", string(escalation.ModeOff)),
					huh.NewOption("selective — only on high-signal ticks", string(escalation.ModeSelective)),
					huh.NewOption("focus — escalate on any sustained activity", string(escalation.ModeFocus)),
					huh.NewOption("rich — focus plus richer context payloads", string(escalation.ModeRich)),
				).
				Value(&mode),
		),

		huh.NewGroup(
			huh.NewInput().
				Title("Assistant gateway WS URL").
				Description("Leave blank to skip the persistent socket transport").
				Value(&gatewayWSURL),

			huh.NewInput().
				Title("Fallback hook URL").
				Description("Leave blank to skip the HTTP fallback transport").
				Value(&hookURL),

			huh.NewInput().
				Title("Session key").
				Description("Identifies this hub to the assistant gateway").
				Value(&sessionKey),
		),

		huh.NewGroup(
			huh.NewConfirm().
				Title("Write a running situation.md?").
				Value(&situationEnabled),

			huh.NewInput().
				Title("situation.md path").
				Value(&situationPath),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("onboard: %w", err)
	}

	port, err := strconv.Atoi(wsPort)
	if err != nil {
		return fmt.Errorf("onboard: invalid port %q: %w", wsPort, err)
	}

	cfg.WSPort = port
	cfg.Agent.Model = model
	cfg.Agent.Enabled = true
	cfg.Escalation.Mode = escalation.Mode(mode)
	cfg.OpenClaw.GatewayWSURL = gatewayWSURL
	cfg.OpenClaw.HookURL = hookURL
	cfg.OpenClaw.SessionKey = sessionKey
	cfg.SituationMDEnabled = situationEnabled
	cfg.SituationMDPath = situationPath

	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("onboard: save config: %w", err)
	}

	fmt.Printf("Saved %s\n", cfgPath)
	fmt.Println("Gateway/hook tokens are not stored in the config file — set SINAIN_GATEWAY_TOKEN and SINAIN_HOOK_TOKEN in your environment.")
	return nil
}

func validatePort(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("must be between 1 and 65535")
	}
	return nil
}
