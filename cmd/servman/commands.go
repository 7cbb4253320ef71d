package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// command implements the CLI verbs against a remote daemon.
type command struct{}

// APIFlags is shared by every remote command.
type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

func (f APIFlags) client() *APIClient {
	return NewAPIClient(f.APIUrl, f.APITimeout)
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func (command) Start(flags APIFlags, port *int) error {
	st, err := flags.client().StartServer(port)
	if err != nil {
		return err
	}
	return printJSON(st)
}

func (command) Stop(flags APIFlags) error {
	st, err := flags.client().StopServer()
	if err != nil {
		return err
	}
	return printJSON(st)
}

func (command) Restart(flags APIFlags, port *int) error {
	st, err := flags.client().RestartServer(port)
	if err != nil {
		return err
	}
	return printJSON(st)
}

func (command) Status(flags APIFlags) error {
	st, err := flags.client().GetStatus()
	if err != nil {
		return err
	}
	return printJSON(st)
}

func (command) ConfigGet(flags APIFlags) error {
	cfg, err := flags.client().GetConfig()
	if err != nil {
		return err
	}
	return printJSON(cfg)
}

// ConfigSet fetches the current config and applies only the fields the
// user set, so an omitted flag never clobbers a stored value.
func (command) ConfigSet(flags APIFlags, workDir string, workDirSet bool, port int, portSet bool) error {
	c := flags.client()
	cfg, err := c.GetConfig()
	if err != nil {
		return err
	}
	if workDirSet {
		cfg.WorkingDirectory = workDir
	}
	if portSet {
		cfg.DefaultPort = port
	}
	saved, err := c.SetConfig(cfg)
	if err != nil {
		return err
	}
	return printJSON(saved)
}

func (command) PortCheck(flags APIFlags, port int) error {
	out, err := flags.client().CheckPort(port)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func (command) PortEvict(flags APIFlags, port int) error {
	out, err := flags.client().EvictPort(port)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func (command) EnvGet(flags APIFlags) error {
	content, err := flags.client().GetEnv()
	if err != nil {
		return err
	}
	fmt.Print(content)
	return nil
}

func (command) EnvSet(flags APIFlags, file string) error {
	b, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	if err := flags.client().SetEnv(string(b)); err != nil {
		return err
	}
	fmt.Println("env file updated")
	return nil
}
