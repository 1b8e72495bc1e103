package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/soypat/fiducube/fcaux"
	"gopkg.in/yaml.v3"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.String()
}

func TestDimsCommand(t *testing.T) {
	out := execute(t, "dims")
	var got fcaux.DerivedSummary
	if err := yaml.Unmarshal([]byte(out), &got); err != nil {
		t.Fatal(err)
	}
	if got.PlateWidth <= 0 || got.MarkerWidth > got.PlateWidth {
		t.Errorf("implausible dimensions %+v", got)
	}
}

func TestConfigCommandOverrides(t *testing.T) {
	out := execute(t, "config", "--flat", "--open-top")
	for _, want := range []string{"slots: flat", "plug: flat", "open_top: true"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}
