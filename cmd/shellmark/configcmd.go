package main

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/Gaurav-Gosain/shellmark/internal/config"
)

func printConfigPath() error {
	path, err := config.GetConfigPath()
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	fmt.Println(path)
	return nil
}

// findEditor picks an editor: $EDITOR, $VISUAL, then common fallbacks.
func findEditor() (string, error) {
	for _, env := range []string{"EDITOR", "VISUAL"} {
		if editor := os.Getenv(env); editor != "" {
			return editor, nil
		}
	}
	for _, editor := range []string{"vim", "vi", "nano", "emacs"} {
		if _, err := exec.LookPath(editor); err == nil {
			return editor, nil
		}
	}
	return "", fmt.Errorf("no editor found; set $EDITOR")
}

func editConfigFile() error {
	path, err := config.GetConfigPath()
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	// Seed the file with defaults so the user edits a complete example.
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefaultConfig(path); err != nil {
			return err
		}
	}

	editor, err := findEditor()
	if err != nil {
		return err
	}

	// #nosec G204 - editor comes from the user's own environment
	cmd := exec.Command(editor, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run editor: %w", err)
	}
	return nil
}

func resetConfigToDefaults() error {
	path, err := config.GetConfigPath()
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		fmt.Printf("This will overwrite %s with defaults. Continue? [y/N] ", path)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y") {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := writeDefaultConfig(path); err != nil {
		return err
	}
	fmt.Printf("Configuration reset: %s\n", path)
	return nil
}

func writeDefaultConfig(path string) error {
	data, err := toml.Marshal(config.DefaultConfig())
	if err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
