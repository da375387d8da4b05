package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aretw0/parley"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	// Flag values survive between executions of the package-level commands.
	for _, name := range []string{"bot", "config"} {
		if err := rootCmd.PersistentFlags().Set(name, ""); err != nil {
			t.Fatal(err)
		}
	}
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if out != "parley version "+parley.Version+"\n" {
		t.Errorf("Unexpected output %q", out)
	}
}

func TestValidateAndGraph(t *testing.T) {
	bot := filepath.Join(t.TempDir(), "bot.yaml")
	def := `
name: echo
intents:
  - name: Hi
    train: ["hi"]
states:
  - name: Init
    transitions:
      - on: Hi
        to: Hello
  - name: Hello
    actions:
      - reply: "hello"
    transitions:
      - to: Init
  - name: Default_Fallback
`
	if err := os.WriteFile(bot, []byte(def), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "validate", bot)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if !strings.Contains(out, "Bot 'echo' is valid") {
		t.Errorf("Unexpected output %q", out)
	}

	out, err = execute(t, "graph", "--bot", bot)
	if err != nil {
		t.Fatalf("graph failed: %v", err)
	}
	if !strings.Contains(out, `Init -- "intent == Hi" --> Hello`) {
		t.Errorf("Unexpected graph %q", out)
	}
}

func TestValidate_MissingBot(t *testing.T) {
	if _, err := execute(t, "validate", filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected an error for a missing bot file")
	}
}
