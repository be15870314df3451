// Package main is the entry point for the LXC deployer server.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ocilxc/lxc-deployer/internal/config"
	"github.com/ocilxc/lxc-deployer/internal/database"
	"github.com/ocilxc/lxc-deployer/internal/discovery"
	"github.com/ocilxc/lxc-deployer/internal/executor"
	"github.com/ocilxc/lxc-deployer/internal/graph"
	"github.com/ocilxc/lxc-deployer/internal/router"
	"github.com/ocilxc/lxc-deployer/internal/service"
	"github.com/ocilxc/lxc-deployer/internal/services"
	"github.com/ocilxc/lxc-deployer/internal/store"
	"github.com/ocilxc/lxc-deployer/internal/synth"
	"github.com/ocilxc/lxc-deployer/internal/system"
	"github.com/ocilxc/lxc-deployer/internal/upgrade"
	"github.com/ocilxc/lxc-deployer/internal/version"
)

func main() {
	// Subcommands run before flag parsing.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "upgrade":
			force := len(os.Args) > 2 && (os.Args[2] == "-f" || os.Args[2] == "--force")
			if err := upgrade.Run(force); err != nil {
				fmt.Fprintf(os.Stderr, "Upgrade failed: %v\n", err)
				os.Exit(1)
			}
			os.Exit(0)
		case "service":
			if err := runServiceCommand(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "Service command failed: %v\n", err)
				os.Exit(1)
			}
			os.Exit(0)
		case "version":
			printVersion()
			os.Exit(0)
		}
	}

	configPath := flag.String("config", "config.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("Warning: Could not load config from %s: %v", *configPath, err)
		log.Println("Using default configuration...")
		cfg, _ = config.Load("")
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	if err := db.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Stack entries are stored encrypted; refuse to start without a key.
	if cfg.Security.EncryptionKey == "" {
		log.Println("")
		log.Println("╔══════════════════════════════════════════════════════════════════╗")
		log.Println("║  SECURITY ERROR: Encryption key not configured!                  ║")
		log.Println("║                                                                  ║")
		log.Println("║  Please add 'security.encryption_key' to config.yaml.            ║")
		log.Println("║  Generate a key with: openssl rand -hex 32                       ║")
		log.Println("║                                                                  ║")
		log.Println("║  Example:                                                        ║")
		log.Println("║    security:                                                     ║")
		log.Println("║      encryption_key: \"<64-character-hex-string>\"                 ║")
		log.Println("╚══════════════════════════════════════════════════════════════════╝")
		log.Println("")
		log.Fatalf("Application startup aborted: encryption key is required")
	}

	crypto, err := services.NewCryptoService(cfg.Security.EncryptionKey)
	if err != nil {
		log.Fatalf("Failed to initialize crypto service: %v", err)
	}
	log.Println("Encryption enabled for stack secrets")

	st := store.New(cfg.Store)
	sy := synth.New(st)
	builder := graph.NewBuilder(st, discovery.NewDocker())
	ex := executor.New(db, cfg, st, builder)
	stacks := services.NewStackService(db, crypto)
	audit := services.NewAuditService(db)
	inspector := system.NewInspector(cfg.Store.LocalDir)

	r := router.New(cfg, router.Deps{
		Store:     st,
		Synth:     sy,
		Builder:   builder,
		Executor:  ex,
		Stacks:    stacks,
		Audit:     audit,
		Inspector: inspector,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("LXC Deployer %s starting on %s", version.Version, addr)
	log.Printf("Access at: http://%s%s", addr, cfg.Server.PathPrefix)

	if err := r.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func printVersion() {
	fmt.Printf("LXC Deployer %s\n", version.Version)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Printf("Git Commit: %s\n", version.GitCommit)
}

func runServiceCommand(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: lxc-deployer service <install|uninstall|status>")
	}

	switch args[0] {
	case "install":
		cfg := service.DefaultConfig()
		if len(args) > 1 {
			cfg.ConfigPath = args[1]
		}
		if err := service.Install(cfg); err != nil {
			return err
		}
		fmt.Println("Service installed and started.")
		return nil
	case "uninstall":
		if err := service.Uninstall(); err != nil {
			return err
		}
		fmt.Println("Service removed.")
		return nil
	case "status":
		status, err := service.Status()
		if err != nil {
			return err
		}
		fmt.Printf("Installed: %v\n", status.IsInstalled)
		fmt.Printf("Enabled:   %v\n", status.IsEnabled)
		fmt.Printf("Running:   %v (%s/%s)\n", status.IsRunning, status.ActiveState, status.SubState)
		return nil
	default:
		return fmt.Errorf("unknown service command %q", args[0])
	}
}
